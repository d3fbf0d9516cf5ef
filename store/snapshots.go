package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

type Snapshot struct {
	ID      int64           `json:"id"`
	Label   string          `json:"label"`
	TakenAt time.Time       `json:"taken_at"`
	Robots  []SnapshotRobot `json:"robots,omitempty"`
}

type SnapshotRobot struct {
	RobotID  string           `json:"robot_id"`
	Position grid.Position    `json:"position"`
	Heading  float64          `json:"heading"`
	Cell     grid.GridIndices `json:"cell"`
	Piece    string           `json:"piece"`
}

// SaveSnapshot stores s and its robot rows in one transaction and sets s.ID.
func (db *DB) SaveSnapshot(s *Snapshot) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	taken := s.TakenAt
	if taken.IsZero() {
		taken = time.Now().UTC()
	}
	id, err := db.insertID(tx, `INSERT INTO snapshots (label, taken_at) VALUES (?, ?)`, s.Label, db.ts(taken))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	for _, r := range s.Robots {
		if _, err := tx.Exec(db.Q(`INSERT INTO snapshot_robots (snapshot_id, robot_id, pos_x, pos_y, heading, cell_i, cell_j, piece) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			id, r.RobotID, r.Position.X, r.Position.Y, r.Heading, r.Cell.I, r.Cell.J, r.Piece); err != nil {
			return fmt.Errorf("insert snapshot robot %s: %w", r.RobotID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.ID, s.TakenAt = id, taken
	return nil
}

// GetSnapshot loads a snapshot with its robot rows.
func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	var s Snapshot
	var taken any
	err := db.QueryRow(db.Q(`SELECT id, label, taken_at FROM snapshots WHERE id=?`), id).Scan(&s.ID, &s.Label, &taken)
	if err != nil {
		return nil, err
	}
	s.TakenAt = parseTime(taken)
	rows, err := db.Query(db.Q(`SELECT robot_id, pos_x, pos_y, heading, cell_i, cell_j, piece FROM snapshot_robots WHERE snapshot_id=? ORDER BY robot_id`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r SnapshotRobot
		if err := rows.Scan(&r.RobotID, &r.Position.X, &r.Position.Y, &r.Heading, &r.Cell.I, &r.Cell.J, &r.Piece); err != nil {
			return nil, err
		}
		s.Robots = append(s.Robots, r)
	}
	return &s, rows.Err()
}

// LatestSnapshot returns the most recent snapshot, or sql.ErrNoRows.
func (db *DB) LatestSnapshot() (*Snapshot, error) {
	var id int64
	if err := db.QueryRow(`SELECT id FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&id); err != nil {
		return nil, err
	}
	return db.GetSnapshot(id)
}

// ListSnapshots returns snapshot headers, newest first, without robot rows.
func (db *DB) ListSnapshots(limit int) ([]*Snapshot, error) {
	rows, err := db.Query(db.Q(`SELECT id, label, taken_at FROM snapshots ORDER BY id DESC LIMIT ?`), rowLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Snapshot
	for rows.Next() {
		var s Snapshot
		var taken any
		if err := rows.Scan(&s.ID, &s.Label, &taken); err != nil {
			return nil, err
		}
		s.TakenAt = parseTime(taken)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes a snapshot and its robot rows.
func (db *DB) DeleteSnapshot(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(db.Q(`DELETE FROM snapshot_robots WHERE snapshot_id=?`), id); err != nil {
		return err
	}
	res, err := tx.Exec(db.Q(`DELETE FROM snapshots WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}
