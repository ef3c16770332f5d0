// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package guide

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/kodiguide/internal/persistence/sqlite"
)

const (
	schemaVersion = 1

	// insertBatchSize bounds the rows per INSERT statement.
	insertBatchSize = 512
)

// SQLiteStore persists the guide in SQLite. Each replace is a single
// transaction; with WAL, readers keep seeing the last committed state until
// the refresh commits.
type SQLiteStore struct {
	db *sql.DB

	mu  sync.Mutex // serializes writers
	gen uint64
	gmu sync.RWMutex // guards gen
}

// NewSQLiteStore opens (and migrates) the guide database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("guide store: migration failed: %w", err)
	}
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'generation'`).Scan(&s.gen); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("guide store: read generation: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS live_channel (
		id INTEGER PRIMARY KEY,
		label TEXT NOT NULL,
		ulabel TEXT NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_live_channel_ulabel ON live_channel(ulabel, seq);

	CREATE TABLE IF NOT EXISTS guide_channel (
		id INTEGER PRIMARY KEY,
		label TEXT NOT NULL,
		ulabel TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_guide_channel_ulabel ON guide_channel(ulabel);

	CREATE TABLE IF NOT EXISTS category (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS program (
		id INTEGER PRIMARY KEY,
		channel INTEGER NOT NULL,
		title TEXT NOT NULL,
		utitle TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		stop_ms INTEGER NOT NULL,
		descr TEXT,
		category_id INTEGER NOT NULL REFERENCES category(id)
	);
	CREATE INDEX IF NOT EXISTS idx_program_category_start ON program(category_id, start_ms);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	// The generation keys shared caches, so a fresh database must not
	// restart at a value an earlier database already used.
	if _, err := tx.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES ('generation', ?)`, time.Now().UnixNano()); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Verify runs a quick integrity check; used by the readiness probe.
func (s *SQLiteStore) Verify(ctx context.Context) error {
	problems, err := sqlite.Verify(ctx, s.db, "quick")
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("guide store integrity: %s", strings.Join(problems, "; "))
	}
	return nil
}

// --- Writers ---

func (s *SQLiteStore) ReplaceLiveChannels(ctx context.Context, items []LiveChannel) error {
	if err := validateLive(items); err != nil {
		return err
	}
	return s.replace(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM live_channel`); err != nil {
			return err
		}
		return insertBatched(ctx, tx, "live_channel", []string{"id", "label", "ulabel", "seq"}, len(items), func(i int) []any {
			ch := NewLiveChannel(items[i].ID, items[i].Label)
			return []any{ch.ID, ch.Label, ch.NormalizedLabel, i}
		})
	})
}

func (s *SQLiteStore) ReplaceGuide(ctx context.Context, snap GuideSnapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	return s.replace(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{`DELETE FROM program`, `DELETE FROM category`, `DELETE FROM guide_channel`} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if err := insertBatched(ctx, tx, "guide_channel", []string{"id", "label", "ulabel"}, len(snap.Channels), func(i int) []any {
			ch := NewGuideChannel(snap.Channels[i].ID, snap.Channels[i].Label)
			return []any{ch.ID, ch.Label, ch.NormalizedLabel}
		}); err != nil {
			return err
		}
		if err := insertBatched(ctx, tx, "category", []string{"id", "name"}, len(snap.Categories), func(i int) []any {
			return []any{snap.Categories[i].ID, snap.Categories[i].Name}
		}); err != nil {
			return err
		}
		return insertBatched(ctx, tx, "program",
			[]string{"id", "channel", "title", "utitle", "start_ms", "stop_ms", "descr", "category_id"},
			len(snap.Programs), func(i int) []any {
				p := NewProgram(snap.Programs[i])
				return []any{p.ID, p.GuideChannelID, p.Title, p.NormalizedTitle,
					p.Start.UnixMilli(), p.Stop.UnixMilli(), nullString(p.Description), p.CategoryID}
			})
	})
}

// replace runs fn in one transaction and bumps the generation with it.
func (s *SQLiteStore) replace(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	var gen uint64
	if err := tx.QueryRowContext(ctx,
		`UPDATE meta SET value = value + 1 WHERE key = 'generation' RETURNING value`).Scan(&gen); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.gmu.Lock()
	s.gen = gen
	s.gmu.Unlock()
	return nil
}

func insertBatched(ctx context.Context, tx *sql.Tx, table string, cols []string, n int, row func(i int) []any) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	prefix := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES "

	for start := 0; start < n; start += insertBatchSize {
		end := min(start+insertBatchSize, n)
		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteByte(',')
			}
			sb.WriteString(placeholder)
			args = append(args, row(i)...)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert %s rows %d-%d: %w", table, start, end-1, err)
		}
	}
	return nil
}

// --- Readers ---

func (s *SQLiteStore) FindLiveChannelByNormalizedLabel(ctx context.Context, key string) (LiveChannel, bool, error) {
	var ch LiveChannel
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, ulabel FROM live_channel WHERE ulabel = ? ORDER BY seq LIMIT 1`, key).
		Scan(&ch.ID, &ch.Label, &ch.NormalizedLabel)
	return scanOne(ch, err)
}

func (s *SQLiteStore) FindGuideChannelByID(ctx context.Context, id int) (GuideChannel, bool, error) {
	var ch GuideChannel
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, ulabel FROM guide_channel WHERE id = ?`, id).
		Scan(&ch.ID, &ch.Label, &ch.NormalizedLabel)
	return scanOne(ch, err)
}

func (s *SQLiteStore) HasGuideChannelWithNormalizedLabel(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM guide_channel WHERE ulabel = ? LIMIT 1`, key).Scan(&one)
	_, ok, err := scanOne(one, err)
	return ok, err
}

func (s *SQLiteStore) FindCategoryByName(ctx context.Context, name string) (Category, bool, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM category WHERE name = ?`, name).Scan(&c.ID, &c.Name)
	return scanOne(c, err)
}

func (s *SQLiteStore) LiveChannels(ctx context.Context) ([]LiveChannel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, ulabel FROM live_channel ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiveChannel
	for rows.Next() {
		var ch LiveChannel
		if err := rows.Scan(&ch.ID, &ch.Label, &ch.NormalizedLabel); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]string, error) {
	// BINARY collation keeps the order identical to sort.Strings.
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM category ORDER BY name COLLATE BINARY`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QueryPrograms(ctx context.Context, f ProgramFilter) ([]Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, title, utitle, start_ms, stop_ms, descr, category_id
		FROM program
		WHERE category_id = ? AND (? = '' OR instr(utitle, ?) > 0)`,
		f.CategoryID, f.TitleContains, f.TitleContains)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var (
			p               Program
			startMS, stopMS int64
			desc            sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.GuideChannelID, &p.Title, &p.NormalizedTitle,
			&startMS, &stopMS, &desc, &p.CategoryID); err != nil {
			return nil, err
		}
		p.Start = time.UnixMilli(startMS).UTC()
		p.Stop = time.UnixMilli(stopMS).UTC()
		p.Description = desc.String
		if f.accepts(p) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

// QueryLivePrograms reads inside one transaction so a concurrent replace
// cannot land between the category lookup and the program join.
func (s *SQLiteStore) QueryLivePrograms(ctx context.Context, q LiveProgramQuery) ([]LiveProgram, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var cat Category
	err = tx.QueryRowContext(ctx, `SELECT id, name FROM category WHERE name = ?`, q.Category).Scan(&cat.ID, &cat.Name)
	cat, ok, err := scanOne(cat, err)
	if err != nil || !ok {
		return nil, false, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT p.id, p.channel, p.title, p.utitle, p.start_ms, p.stop_ms, p.descr, p.category_id,
		       l.id, l.label, l.ulabel
		FROM program p
		JOIN guide_channel g ON g.id = p.channel
		JOIN live_channel l ON l.ulabel = g.ulabel
		WHERE p.category_id = ? AND (? = '' OR instr(p.utitle, ?) > 0)
		  AND l.seq = (SELECT MIN(seq) FROM live_channel WHERE ulabel = g.ulabel)`,
		cat.ID, q.TitleContains, q.TitleContains)
	if err != nil {
		return nil, true, err
	}
	defer rows.Close()

	f := q.filter(cat.ID)
	var out []LiveProgram
	for rows.Next() {
		var (
			lp              LiveProgram
			startMS, stopMS int64
			desc            sql.NullString
		)
		if err := rows.Scan(&lp.ID, &lp.GuideChannelID, &lp.Title, &lp.NormalizedTitle,
			&startMS, &stopMS, &desc, &lp.CategoryID,
			&lp.Channel.ID, &lp.Channel.Label, &lp.Channel.NormalizedLabel); err != nil {
			return nil, true, err
		}
		lp.Start = time.UnixMilli(startMS).UTC()
		lp.Stop = time.UnixMilli(stopMS).UTC()
		lp.Description = desc.String
		if f.accepts(lp.Program) {
			out = append(out, lp)
		}
	}
	return out, true, rows.Err()
}

func (s *SQLiteStore) Generation() uint64 {
	s.gmu.RLock()
	defer s.gmu.RUnlock()
	return s.gen
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM live_channel),
			(SELECT COUNT(*) FROM guide_channel),
			(SELECT COUNT(*) FROM category),
			(SELECT COUNT(*) FROM program)`).
		Scan(&st.LiveChannels, &st.GuideChannels, &st.Categories, &st.Programs)
	if err != nil {
		return Stats{}, err
	}
	st.Generation = s.Generation()
	return st, nil
}

func scanOne[T any](v T, err error) (T, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
