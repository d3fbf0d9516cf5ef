package www

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/engine"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/robotstate"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

func testServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.ListenAddr = ""
	cfg.Motion.TimePoint = 0
	cfg.Robots = []config.RobotConfig{
		{ID: "robot-1", MAC: "virtual-01", Piece: "rook", Color: "white",
			Home: grid.GridIndices{I: 2, J: 0}, Default: grid.GridIndices{I: 2, J: 2}, Heading: math.Pi / 2, Virtual: true},
		{ID: "robot-2", MAC: "virtual-02", Piece: "knight", Color: "white",
			Home: grid.GridIndices{I: 3, J: 0}, Default: grid.GridIndices{I: 3, J: 2}, Heading: math.Pi / 2, Virtual: true},
	}

	db, err := store.Open(&config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "www.db")}})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng, err := engine.New(engine.Config{
		AppConfig:  cfg,
		DB:         db,
		RobotState: robotstate.NewManager(db, nil),
		LogFunc:    func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	for _, r := range eng.Registry().All() {
		if v, ok := eng.Virtual(r.ID); ok {
			v.TileTime, v.TurnTime = 0, 0
		}
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(eng.Stop)

	handler, stop := NewRouter(eng)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		stop()
	})
	return srv, eng
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func postJSON(t *testing.T, c *http.Client, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	resp, err := c.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func login(t *testing.T, c *http.Client, base string) {
	t.Helper()
	resp, _ := postJSON(t, c, base+"/login", map[string]string{"username": "admin", "password": "admin"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func TestHealthAndRobots(t *testing.T) {
	srv, _ := testServer(t)
	c := newClient(t)

	resp, err := c.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = c.Get(srv.URL + "/api/robots")
	if err != nil {
		t.Fatalf("GET robots: %v", err)
	}
	defer resp.Body.Close()
	var robots []robotView
	if err := json.NewDecoder(resp.Body).Decode(&robots); err != nil {
		t.Fatalf("decode robots: %v", err)
	}
	if len(robots) != 2 {
		t.Fatalf("robots = %d, want 2", len(robots))
	}
	if robots[0].ID != "robot-1" || !robots[0].Connected {
		t.Errorf("robot[0] = %+v", robots[0])
	}
	if robots[0].Cell != (grid.GridIndices{I: 2, J: 0}) || robots[0].Square != "" {
		t.Errorf("robot-1 should start at home, got %v %q", robots[0].Cell, robots[0].Square)
	}
}

func TestWritesRequireLogin(t *testing.T) {
	srv, eng := testServer(t)
	c := newClient(t)

	resp, _ := postJSON(t, c, srv.URL+"/api/pause", map[string]string{"reason": "lunch"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous pause status = %d, want 401", resp.StatusCode)
	}

	resp, _ = postJSON(t, c, srv.URL+"/login", map[string]string{"username": "admin", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}

	login(t, c, srv.URL)
	resp, body := postJSON(t, c, srv.URL+"/api/pause", map[string]string{"reason": "lunch"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	if body["changed"] != true {
		t.Errorf("pause body = %v", body)
	}
	if paused, reason := eng.Paused(); !paused || reason != "lunch" {
		t.Errorf("Paused() = %v, %q", paused, reason)
	}

	entries, err := eng.DB().ListSubjectAudit(store.AuditFleet, store.FleetSubjectID, 0)
	if err != nil {
		t.Fatalf("ListSubjectAudit: %v", err)
	}
	if len(entries) == 0 || entries[0].Actor != "admin" {
		t.Errorf("audit entries = %+v", entries)
	}

	resp, _ = postJSON(t, c, srv.URL+"/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, c, srv.URL+"/api/unpause", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unpause after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestSubmitMove(t *testing.T) {
	srv, eng := testServer(t)
	c := newClient(t)
	login(t, c, srv.URL)

	resp, _ := postJSON(t, c, srv.URL+"/api/setup", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("setup status = %d", resp.StatusCode)
	}
	eng.Executor().Wait()

	resp, _ = postJSON(t, c, srv.URL+"/api/moves", map[string]string{"from": "z9", "to": "a1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown square status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, c, srv.URL+"/api/moves", map[string]string{"from": "a1", "to": "b1"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("occupied destination status = %d, want 422", resp.StatusCode)
	}

	resp, body := postJSON(t, c, srv.URL+"/api/moves", map[string]string{"from": "a1", "to": "a3", "requestId": "r-1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("move status = %d (%v)", resp.StatusCode, body)
	}
	if body["type"] != "VERTICAL" {
		t.Errorf("move type = %v", body["type"])
	}
	eng.Executor().Wait()

	if cell, _ := eng.Registry().CellOf("robot-1"); cell != (grid.GridIndices{I: 2, J: 4}) {
		t.Errorf("robot-1 at %v, want (2,4)", cell)
	}

	hr, err := c.Get(srv.URL + "/api/history?limit=5")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer hr.Body.Close()
	var actions []store.Action
	if err := json.NewDecoder(hr.Body).Decode(&actions); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(actions) != 2 {
		t.Errorf("history = %d entries, want 2", len(actions))
	}
}

func TestSnapshotRollback(t *testing.T) {
	srv, eng := testServer(t)
	c := newClient(t)
	login(t, c, srv.URL)

	resp, _ := postJSON(t, c, srv.URL+"/api/rollback", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rollback to startup snapshot status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, c, srv.URL+"/api/snapshot", map[string]string{"label": "before"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	if body["label"] != "before" {
		t.Errorf("snapshot body = %v", body)
	}

	sr, err := c.Get(srv.URL + "/api/snapshots")
	if err != nil {
		t.Fatalf("GET snapshots: %v", err)
	}
	defer sr.Body.Close()
	var snaps []store.Snapshot
	if err := json.NewDecoder(sr.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Label != "before" || len(snaps[0].Robots) != 0 {
		t.Errorf("snapshots = %+v", snaps)
	}

	if _, err := eng.Rollback("tester"); err != nil {
		t.Errorf("Rollback to manual snapshot: %v", err)
	}
}

func TestEventStream(t *testing.T) {
	srv, eng := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	eng.Pause("stream test", "tester")

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() != "event: fleet.paused" {
			continue
		}
		if !sc.Scan() || !strings.HasPrefix(sc.Text(), "data: ") {
			t.Fatalf("missing data line after event")
		}
		var ev engine.PauseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(sc.Text(), "data: ")), &ev); err != nil {
			t.Fatalf("decode pause event: %v", err)
		}
		if ev.Reason != "stream test" || ev.Actor != "tester" {
			t.Errorf("pause event = %+v", ev)
		}
		return
	}
	t.Fatalf("stream ended without fleet.paused: %v", sc.Err())
}

func TestWebSocketStream(t *testing.T) {
	srv, eng := testServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	eng.Pause("ws test", "tester")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Event != "fleet.status" {
			continue
		}
		var st struct {
			Paused bool   `json:"paused"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if !st.Paused || st.Reason != "ws test" {
			t.Errorf("status = %+v", st)
		}
		return
	}
}
