package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS robots (
    id          TEXT PRIMARY KEY,
    mac         TEXT NOT NULL DEFAULT '',
    piece       TEXT NOT NULL DEFAULT '',
    color       TEXT NOT NULL DEFAULT '',
    home_i      INTEGER NOT NULL DEFAULT 0,
    home_j      INTEGER NOT NULL DEFAULT 0,
    default_i   INTEGER NOT NULL DEFAULT 0,
    default_j   INTEGER NOT NULL DEFAULT 0,
    pos_x       DOUBLE PRECISION NOT NULL DEFAULT 0,
    pos_y       DOUBLE PRECISION NOT NULL DEFAULT 0,
    heading     DOUBLE PRECISION NOT NULL DEFAULT 0,
    cell_i      INTEGER NOT NULL DEFAULT 0,
    cell_j      INTEGER NOT NULL DEFAULT 0,
    connected   BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS snapshots (
    id          BIGSERIAL PRIMARY KEY,
    label       TEXT NOT NULL DEFAULT '',
    taken_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS snapshot_robots (
    snapshot_id BIGINT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    robot_id    TEXT NOT NULL,
    pos_x       DOUBLE PRECISION NOT NULL,
    pos_y       DOUBLE PRECISION NOT NULL,
    heading     DOUBLE PRECISION NOT NULL,
    cell_i      INTEGER NOT NULL,
    cell_j      INTEGER NOT NULL,
    piece       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (snapshot_id, robot_id)
);

CREATE TABLE IF NOT EXISTS action_history (
    id          BIGSERIAL PRIMARY KEY,
    command_id  BIGINT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    robots      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_action_history_command ON action_history(command_id);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    msg_type    TEXT NOT NULL,
    msg_id      TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT '',
    payload     BYTEA NOT NULL,
    retries     INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    subject     TEXT NOT NULL,
    subject_id  TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_log(subject, subject_id);

CREATE TABLE IF NOT EXISTS operators (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login    TIMESTAMPTZ
);
`
