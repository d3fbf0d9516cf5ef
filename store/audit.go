package store

import "time"

// Audit subjects.
const (
	AuditRobot    = "robot"
	AuditFleet    = "fleet"
	AuditCommand  = "command"
	AuditSnapshot = "snapshot"
)

// FleetSubjectID is the subject id of fleet-wide entries.
const FleetSubjectID = "fleet"

// AuditEntry records one change to a robot, a command or the fleet as a
// whole, and who caused it.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	SubjectID string    `json:"subject_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordAudit appends e and fills its ID and CreatedAt. An empty actor is
// recorded as "system".
func (db *DB) RecordAudit(e *AuditEntry) error {
	if e.Actor == "" {
		e.Actor = "system"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	id, err := db.insertID(db, `INSERT INTO audit_log (subject, subject_id, action, detail, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Subject, e.SubjectID, e.Action, e.Detail, e.Actor, db.ts(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListAuditLog returns the newest entries first. limit <= 0 returns all.
func (db *DB) ListAuditLog(limit int) ([]*AuditEntry, error) {
	return db.queryAudit(`SELECT id, subject, subject_id, action, detail, actor, created_at FROM audit_log ORDER BY id DESC LIMIT ?`, rowLimit(limit))
}

// ListSubjectAudit returns the history of one robot, command or snapshot,
// newest first.
func (db *DB) ListSubjectAudit(subject, subjectID string, limit int) ([]*AuditEntry, error) {
	return db.queryAudit(`SELECT id, subject, subject_id, action, detail, actor, created_at FROM audit_log WHERE subject=? AND subject_id=? ORDER BY id DESC LIMIT ?`,
		subject, subjectID, rowLimit(limit))
}

func (db *DB) queryAudit(query string, args ...any) ([]*AuditEntry, error) {
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.Subject, &e.SubjectID, &e.Action, &e.Detail, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
