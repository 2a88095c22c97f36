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

	_ "modernc.org/sqlite"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./coach.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- catalog ----

func (s *sqliteStore) SyncCatalog(ctx context.Context, items []content.ContentItem) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Format(time.RFC3339Nano)
	added := 0
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items(id, body, author, source, media, tags, added_at)
			 VALUES(?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO NOTHING`,
			string(it.ID), it.Text, nullStr(it.Author), nullStr(it.Source), nullStr(it.Media), joinTags(it.Tags), now,
		)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *sqliteStore) Item(ctx context.Context, id content.ItemID) (content.ContentItem, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, body, author, source, media, tags FROM items WHERE id = ?`, string(id))
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ContentItem{}, false, nil
	}
	if err != nil {
		return content.ContentItem{}, false, err
	}
	return it, true, nil
}

func (s *sqliteStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// ---- delivery ledger ----

func (s *sqliteStore) UnseenItems(ctx context.Context) ([]content.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.body, i.author, i.source, i.media, i.tags
		 FROM items i
		 LEFT JOIN deliveries d ON d.item_id = i.id
		 WHERE d.item_id IS NULL
		 ORDER BY i.added_at, i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []content.ContentItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountUnseen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items i
		 LEFT JOIN deliveries d ON d.item_id = i.id
		 WHERE d.item_id IS NULL`).Scan(&n)
	return n, err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, rec content.DeliveryRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if rec.Status == "" {
		rec.Status = content.StatusDelivered
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, item_id, at, day, slot_id, status) VALUES(?,?,?,?,?,?)`,
		rec.ID, string(rec.ItemID), rec.At.Format(time.RFC3339Nano), rec.Day.String(), rec.SlotID, string(rec.Status),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w (item=%s)", ErrItemDelivered, rec.ItemID)
	}
	return err
}

func (s *sqliteStore) Deliveries(ctx context.Context, limit int) ([]content.DeliveryRecord, error) {
	q := `SELECT id, item_id, at, day, slot_id, status FROM deliveries ORDER BY at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []content.DeliveryRecord
	for rows.Next() {
		var rec content.DeliveryRecord
		var at, day string
		var status string
		if err := rows.Scan(&rec.ID, (*string)(&rec.ItemID), &at, &day, &rec.SlotID, &status); err != nil {
			return nil, err
		}
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("bad delivery timestamp %q: %w", at, err)
		}
		if rec.Day, err = content.ParseDayKey(day); err != nil {
			return nil, err
		}
		rec.Status = content.DeliveryStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SlotDelivered(ctx context.Context, slotID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM deliveries WHERE slot_id = ? LIMIT 1`, slotID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) UpdateDeliveryStatus(ctx context.Context, id string, st content.DeliveryStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE deliveries SET status = ? WHERE id = ?`, string(st), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	return nil
}

func (s *sqliteStore) PurgeDeliveries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- preferences ----

func (s *sqliteStore) ReadPreferences(ctx context.Context) (schedule.Preferences, bool, error) {
	var (
		p       schedule.Preferences
		enabled int
		mode    string
		days    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, mode, custom_days, window_start, window_end, per_day FROM preferences WHERE id = 1`).
		Scan(&enabled, &mode, &days, (*int)(&p.WindowStart), (*int)(&p.WindowEnd), &p.PerDay)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Preferences{}, false, nil
	}
	if err != nil {
		return schedule.Preferences{}, false, err
	}
	p.Enabled = enabled != 0
	p.Mode = schedule.Mode(mode)
	p.CustomDays = schedule.DaySet(days)
	return p, true, nil
}

func (s *sqliteStore) WritePreferences(ctx context.Context, p schedule.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences(id, enabled, mode, custom_days, window_start, window_end, per_day, updated_at)
		 VALUES(1,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   enabled=excluded.enabled, mode=excluded.mode, custom_days=excluded.custom_days,
		   window_start=excluded.window_start, window_end=excluded.window_end,
		   per_day=excluded.per_day, updated_at=excluded.updated_at`,
		enabled, string(p.Mode), int(p.CustomDays), int(p.WindowStart), int(p.WindowEnd), p.PerDay,
		time.Now().Format(time.RFC3339Nano),
	)
	return err
}

// ---- pending work units ----

func (s *sqliteStore) SavePendingUnit(ctx context.Context, u PendingUnit) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("storage: pending unit id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_units(id, day, slot_index, at_ms) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET day=excluded.day, slot_index=excluded.slot_index, at_ms=excluded.at_ms`,
		u.ID, u.Day.String(), u.SlotIndex, u.At.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeletePendingUnit(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_units WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) ListPendingUnits(ctx context.Context) ([]PendingUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, day, slot_index, at_ms FROM pending_units ORDER BY at_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingUnit
	for rows.Next() {
		var (
			u   PendingUnit
			day string
			ms  int64
		)
		if err := rows.Scan(&u.ID, &day, &u.SlotIndex, &ms); err != nil {
			return nil, err
		}
		if u.Day, err = content.ParseDayKey(day); err != nil {
			return nil, err
		}
		u.At = time.UnixMilli(ms)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClearPendingUnits(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_units`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (content.ContentItem, error) {
	var (
		it                    content.ContentItem
		author, source, media sql.NullString
		tags                  string
	)
	if err := r.Scan((*string)(&it.ID), &it.Text, &author, &source, &media, &tags); err != nil {
		return content.ContentItem{}, err
	}
	it.Author = author.String
	it.Source = source.String
	it.Media = media.String
	it.Tags = splitTags(tags)
	return it, nil
}

func joinTags(tags []string) string { return strings.Join(tags, ",") }

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
