package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	logx "newsletterbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes every statement; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not closed
// because closing its database driver would close db.
func migrateUp(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) EnrollRecipient(ctx context.Context, r Recipient) (bool, error) {
	if r.EnrolledAt.IsZero() {
		r.EnrolledAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM recipients WHERE id = ?`, r.ID).Scan(&one)
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if existed {
		_, err = tx.ExecContext(ctx,
			`UPDATE recipients SET active = 1, username = ?, display_name = ? WHERE id = ?`,
			nullStr(r.Username), r.DisplayName, r.ID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recipients(id, username, display_name, active, enrolled_at) VALUES(?,?,?,1,?)`,
			r.ID, nullStr(r.Username), r.DisplayName, r.EnrolledAt.UnixMilli(),
		)
	}
	if err != nil {
		return false, err
	}
	return existed, tx.Commit()
}

func (s *sqliteStore) SetRecipientActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipients SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Recipient(ctx context.Context, id int64) (Recipient, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, active, enrolled_at FROM recipients WHERE id = ?`, id)
	r, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ActiveRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, display_name, active, enrolled_at FROM recipients
		 WHERE active = 1 ORDER BY enrolled_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountActiveRecipients(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients WHERE active = 1`).Scan(&n)
	return n, err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.RunAt.IsZero() {
		r.RunAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_records(run_at, title, recipients_reached, success) VALUES(?,?,?,?)`,
		r.RunAt.UnixMilli(), r.Title, r.RecipientsReached, r.Success,
	)
	return err
}

func (s *sqliteStore) CountRuns(ctx context.Context, f RunFilter) (int, error) {
	q := `SELECT COUNT(*) FROM run_records WHERE 1 = 1`
	var args []any
	if f.SuccessOnly {
		q += ` AND success = 1`
	}
	if !f.From.IsZero() {
		q += ` AND run_at >= ?`
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		q += ` AND run_at < ?`
		args = append(args, f.To.UnixMilli())
	}
	var n int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) LastRun(ctx context.Context) (RunRecord, error) {
	var (
		r     RunRecord
		runAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_at, title, recipients_reached, success FROM run_records
		 ORDER BY run_at DESC, id DESC LIMIT 1`,
	).Scan(&r.ID, &runAt, &r.Title, &r.RecipientsReached, &r.Success)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	r.RunAt = time.UnixMilli(runAt)
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(sc scanner) (Recipient, error) {
	var (
		r        Recipient
		username sql.NullString
		enrolled int64
	)
	if err := sc.Scan(&r.ID, &username, &r.DisplayName, &r.Active, &enrolled); err != nil {
		return Recipient{}, err
	}
	r.Username = username.String
	r.EnrolledAt = time.UnixMilli(enrolled)
	return r, nil
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
