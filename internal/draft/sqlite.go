package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists each draft as a JSON document keyed by conversation.
// updated_at is stored as unix nanoseconds so the sweep can compare it.
type SQLiteStore struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	conversation_id TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'collecting',
	body            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS drafts_updated_at ON drafts (updated_at);
`

type draftRow struct {
	ConversationID string `db:"conversation_id"`
	Status         string `db:"status"`
	Body           string `db:"body"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Draft, bool, error) {
	var row draftRow
	err := s.db.GetContext(ctx, &row, `SELECT conversation_id, status, body, created_at, updated_at FROM drafts WHERE conversation_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select draft: %w", err)
	}
	var d Draft
	if err := json.Unmarshal([]byte(row.Body), &d); err != nil {
		return nil, false, fmt.Errorf("decode draft %s: %w", id, err)
	}
	if d.SourceMap == nil {
		d.SourceMap = map[string]Source{}
	}
	return &d, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, d *Draft) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	row := draftRow{
		ConversationID: d.ConversationID,
		Status:         string(d.Status),
		Body:           string(body),
		CreatedAt:      d.CreatedAt.UnixNano(),
		UpdatedAt:      d.UpdatedAt.UnixNano(),
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO drafts (conversation_id, status, body, created_at, updated_at)
		VALUES (:conversation_id, :status, :body, :created_at, :updated_at)
		ON CONFLICT(conversation_id) DO UPDATE SET
			status = excluded.status,
			body = excluded.body,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountByStatus reports how many drafts sit in each status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows := []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM drafts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count drafts: %w", err)
	}
	out := map[Status]int{}
	for _, r := range rows {
		out[Status(r.Status)] = r.N
	}
	return out, nil
}
