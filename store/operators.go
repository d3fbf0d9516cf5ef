package store

import "time"

// Operator is a person allowed to drive the fleet through the web API.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

func (db *DB) CreateOperator(username, passwordHash string) error {
	_, err := db.Exec(db.Q(`INSERT INTO operators (username, password_hash, created_at) VALUES (?, ?, ?)`),
		username, passwordHash, db.now())
	return err
}

func (db *DB) GetOperator(username string) (*Operator, error) {
	var o Operator
	var createdAt, lastLogin any
	err := db.QueryRow(db.Q(`SELECT id, username, password_hash, created_at, last_login FROM operators WHERE username=?`), username).
		Scan(&o.ID, &o.Username, &o.PasswordHash, &createdAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	o.LastLogin = parseTimePtr(lastLogin)
	return &o, nil
}

// HasOperators reports whether any account exists yet.
func (db *DB) HasOperators() (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM operators`).Scan(&count)
	return count > 0, err
}

func (db *DB) SetOperatorPassword(username, passwordHash string) error {
	_, err := db.Exec(db.Q(`UPDATE operators SET password_hash=? WHERE username=?`), passwordHash, username)
	return err
}

// RecordOperatorLogin stamps the operator's last successful login.
func (db *DB) RecordOperatorLogin(username string) error {
	_, err := db.Exec(db.Q(`UPDATE operators SET last_login=? WHERE username=?`), db.now(), username)
	return err
}
