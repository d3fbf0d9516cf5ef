package store

import (
	"strings"
	"time"
)

// Action is one finished top-level command.
type Action struct {
	ID         int64      `json:"id"`
	CommandID  int64      `json:"command_id"`
	Name       string     `json:"name"`
	Robots     []string   `json:"robots"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Action statuses.
const (
	ActionSucceeded = "succeeded"
	ActionFailed    = "failed"
	ActionCleared   = "cleared"
)

func (db *DB) InsertAction(a *Action) error {
	id, err := db.insertID(db, `INSERT INTO action_history (command_id, name, robots, status, error, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.CommandID, a.Name, strings.Join(a.Robots, ","), a.Status, a.Error, db.nullTime(a.StartedAt), db.nullTime(a.FinishedAt))
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// ListActions returns the newest actions first.
func (db *DB) ListActions(limit int) ([]*Action, error) {
	rows, err := db.Query(db.Q(`SELECT id, command_id, name, robots, status, error, started_at, finished_at FROM action_history ORDER BY id DESC LIMIT ?`), rowLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Action
	for rows.Next() {
		var a Action
		var robots string
		var started, finished any
		if err := rows.Scan(&a.ID, &a.CommandID, &a.Name, &robots, &a.Status, &a.Error, &started, &finished); err != nil {
			return nil, err
		}
		if robots != "" {
			a.Robots = strings.Split(robots, ",")
		}
		a.StartedAt = parseTimePtr(started)
		a.FinishedAt = parseTimePtr(finished)
		out = append(out, &a)
	}
	return out, rows.Err()
}
