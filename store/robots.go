package store

import (
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// Robot is the persisted row for one robot: its identity plus the last
// committed pose.
type Robot struct {
	ID        string           `json:"id"`
	MAC       string           `json:"mac"`
	Piece     string           `json:"piece"`
	Color     string           `json:"color"`
	Home      grid.GridIndices `json:"home"`
	Default   grid.GridIndices `json:"default"`
	Position  grid.Position    `json:"position"`
	Heading   float64          `json:"heading"`
	Cell      grid.GridIndices `json:"cell"`
	Connected bool             `json:"connected"`
	UpdatedAt time.Time        `json:"updated_at"`
}

const robotColumns = `id, mac, piece, color, home_i, home_j, default_i, default_j, pos_x, pos_y, heading, cell_i, cell_j, connected, updated_at`

func scanRobot(row interface{ Scan(...any) error }) (*Robot, error) {
	var r Robot
	var updatedAt any
	err := row.Scan(&r.ID, &r.MAC, &r.Piece, &r.Color,
		&r.Home.I, &r.Home.J, &r.Default.I, &r.Default.J,
		&r.Position.X, &r.Position.Y, &r.Heading, &r.Cell.I, &r.Cell.J,
		&r.Connected, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// UpsertRobot writes the whole row, inserting it on first sight.
func (db *DB) UpsertRobot(r *Robot) error {
	_, err := db.Exec(db.Q(`INSERT INTO robots (id, mac, piece, color, home_i, home_j, default_i, default_j, pos_x, pos_y, heading, cell_i, cell_j, connected, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mac=excluded.mac, piece=excluded.piece, color=excluded.color,
			home_i=excluded.home_i, home_j=excluded.home_j, default_i=excluded.default_i, default_j=excluded.default_j,
			pos_x=excluded.pos_x, pos_y=excluded.pos_y, heading=excluded.heading,
			cell_i=excluded.cell_i, cell_j=excluded.cell_j, connected=excluded.connected,
			updated_at=excluded.updated_at`),
		r.ID, r.MAC, r.Piece, r.Color, r.Home.I, r.Home.J, r.Default.I, r.Default.J,
		r.Position.X, r.Position.Y, r.Heading, r.Cell.I, r.Cell.J, r.Connected, db.now())
	return err
}

// UpdateRobotPose stores the latest committed pose and piece tag.
func (db *DB) UpdateRobotPose(id string, pos grid.Position, heading float64, cell grid.GridIndices, piece string) error {
	_, err := db.Exec(db.Q(`UPDATE robots SET pos_x=?, pos_y=?, heading=?, cell_i=?, cell_j=?, piece=?, updated_at=? WHERE id=?`),
		pos.X, pos.Y, heading, cell.I, cell.J, piece, db.now(), id)
	return err
}

func (db *DB) SetRobotConnected(id string, connected bool) error {
	_, err := db.Exec(db.Q(`UPDATE robots SET connected=?, updated_at=? WHERE id=?`), connected, db.now(), id)
	return err
}

func (db *DB) GetRobot(id string) (*Robot, error) {
	return scanRobot(db.QueryRow(db.Q(`SELECT `+robotColumns+` FROM robots WHERE id=?`), id))
}

func (db *DB) ListRobots() ([]*Robot, error) {
	rows, err := db.Query(`SELECT ` + robotColumns + ` FROM robots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Robot
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListConnectedRobots returns the ids of robots marked connected.
func (db *DB) ListConnectedRobots() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM robots WHERE connected=` + db.dialect.BoolTrue() + ` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
