package usage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteAuditSink is a write-behind mirror of the usage audit log into a
// local SQLite file, for operators who want usage history to survive a
// restart. It never participates in budget admission decisions.
type SQLiteAuditSink struct {
	db *sql.DB
}

// OpenSQLiteAuditSink opens (creating if necessary) a SQLite database at
// path and ensures its token_records table exists.
func OpenSQLiteAuditSink(path string) (*SQLiteAuditSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open audit db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS token_records (
	timestamp        TEXT NOT NULL,
	session_key      TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	input_tokens     INTEGER NOT NULL,
	output_tokens    INTEGER NOT NULL,
	cost_estimate_usd REAL NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: create audit schema: %w", err)
	}
	return &SQLiteAuditSink{db: db}, nil
}

// Append inserts rec as a new row. Failures here never block or fail the
// in-memory meter that called it.
func (s *SQLiteAuditSink) Append(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO token_records
			(timestamp, session_key, agent_id, provider, model, input_tokens, output_tokens, cost_estimate_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		rec.SessionKey, rec.AgentID, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostEstimateUSD,
	)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteAuditSink) Close() error {
	return s.db.Close()
}
