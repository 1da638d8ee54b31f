// Package store owns the SQLite database and the barcode images directory.
//
// It holds three tables (codigos_barras, servicios, usuarios), applies the
// embedded goose migrations plus the additive name-column migration on Open,
// and guards every destructive operation with a timestamped backup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/config"
	"github.com/ironsheep/carnet-tools/internal/dbx"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/store/migrations"
)

// BusyTimeout is how long a statement waits on a locked database.
const BusyTimeout = 10 * time.Second

// DefaultRetention is the number of backups kept when Options.Retention is zero.
const DefaultRetention = 10

// Options configures Open.
type Options struct {
	DataDir   string
	Retention int

	// Minter draws unique IDs; nil uses minter.New().
	Minter *minter.Minter

	// Now overrides the clock for timestamps and backup names.
	Now func() time.Time
}

// Store is the record store. It is safe for use from one process; the
// underlying pool holds a single connection so writes are serialized.
type Store struct {
	db         *sql.DB
	dataDir    string
	imagesDir  string
	backupsDir string
	dbPath     string
	retention  int
	minter     *minter.Minter
	now        func() time.Time
	log        zerolog.Logger

	cols columnSet
}

// Open creates the data layout, opens the database, migrates it, and prunes
// old backups. Errors wrap common.ErrStorage.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (*Store, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory not set", common.ErrStorage)
	}
	layout := config.Config{DataDir: opts.DataDir}
	s := &Store{
		dataDir:    opts.DataDir,
		imagesDir:  layout.ImagesPath(),
		backupsDir: layout.BackupsPath(),
		dbPath:     layout.DatabasePath(),
		retention:  opts.Retention,
		minter:     opts.Minter,
		now:        opts.Now,
		log:        log.With().Str("component", "store").Logger(),
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.minter == nil {
		s.minter = minter.New()
	}
	if s.now == nil {
		s.now = time.Now
	}

	for _, dir := range []string{s.dataDir, s.imagesDir, s.backupsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %w", common.ErrStorage, dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(s.dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, s.dbPath, err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := s.PruneBackups(); err != nil {
		s.log.Warn().Err(err).Msg("backup pruning failed")
	}
	return s, nil
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.ToSlash(path), BusyTimeout.Milliseconds())
}

// runMigrations is a seam for tests.
var runMigrations = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("%w: migrate: %w", common.ErrStorage, err)
	}
	for _, col := range []string{"nombres", "apellidos"} {
		_, err := s.db.ExecContext(ctx, "ALTER TABLE codigos_barras ADD COLUMN "+col+" TEXT")
		if err != nil && !dbx.IsDuplicateColumn(err) {
			return fmt.Errorf("%w: add column %s: %w", common.ErrStorage, col, err)
		}
	}
	cols, err := readColumns(ctx, s.db, "codigos_barras")
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	s.cols = cols
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the root of the data layout.
func (s *Store) DataDir() string { return s.dataDir }

// ImagesDir returns the directory barcode PNGs live in.
func (s *Store) ImagesDir() string { return s.imagesDir }

// BackupsDir returns the directory backups are written to.
func (s *Store) BackupsDir() string { return s.backupsDir }

// ImagePath resolves a stored image filename to its path on disk.
func (s *Store) ImagePath(filename string) string {
	return filepath.Join(s.imagesDir, filename)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrStorage, op, err)
}

// timestamp formats t the way SQLite's CURRENT_TIMESTAMP does.
func timestamp(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// parseTime accepts what the driver hands back for a TIMESTAMP column.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	}
	return time.Time{}
}

func parseTimeString(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
