package store

import "time"

// OutboxMessage is an encoded game-layer envelope waiting to be published.
type OutboxMessage struct {
	ID        int64
	Topic     string
	MsgType   string
	MsgID     string
	Source    string
	Payload   []byte
	Retries   int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// EnqueueOutbox stores m for the drainer and fills its ID and CreatedAt.
func (db *DB) EnqueueOutbox(m *OutboxMessage) error {
	m.CreatedAt = time.Now().UTC()
	id, err := db.insertID(db, `INSERT INTO outbox (topic, msg_type, msg_id, source, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Topic, m.MsgType, m.MsgID, m.Source, m.Payload, db.ts(m.CreatedAt))
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// ListPendingOutbox returns unsent messages oldest first. Messages that have
// failed maxRetries times are skipped; maxRetries <= 0 returns them all.
func (db *DB) ListPendingOutbox(limit, maxRetries int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, msg_type, msg_id, source, payload, retries, last_error, created_at
		FROM outbox WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), rowLimit(maxRetries), rowLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.MsgType, &m.MsgID, &m.Source, &m.Payload, &m.Retries, &m.LastError, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// CountPendingOutbox counts unsent messages still eligible for publishing.
func (db *DB) CountPendingOutbox(maxRetries int) (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL AND retries < ?`), rowLimit(maxRetries)).Scan(&n)
	return n, err
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=? WHERE id=?`), db.now(), id)
	return err
}

// FailOutbox counts a failed publish and keeps its cause.
func (db *DB) FailOutbox(id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1, last_error=? WHERE id=?`), msg, id)
	return err
}
