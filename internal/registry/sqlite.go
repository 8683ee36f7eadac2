package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/dbnest/dbnest/internal/fileutil"
	"github.com/dbnest/dbnest/internal/liveness"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

// schemaLockRetryInterval is the interval between attempts to acquire the
// cross-process schema lock while another invocation is initializing the
// database.
const schemaLockRetryInterval = 50 * time.Millisecond

// schemaLockTimeout bounds how long Open waits for the schema lock. Schema
// creation is a handful of statements; a holder that keeps the lock longer
// than this is wedged.
const schemaLockTimeout = 10 * time.Second

// pruneConcurrency caps concurrent liveness probes during a List sweep.
const pruneConcurrency = 8

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	data_dir   TEXT PRIMARY KEY,
	port       INTEGER NOT NULL,
	pid        INTEGER NOT NULL,
	started_at TEXT NOT NULL
);
`

// Compile-time interface satisfaction check.
var _ Store = (*SQLite)(nil)

// SQLite is the durable Store implementation backed by a single SQLite
// database file shared by all invocations of the tool. Each instance
// mutates only its own row; cross-process write atomicity is whatever
// SQLite provides, which is sufficient for this tool's interactive
// concurrency level.
type SQLite struct {
	db     *sql.DB
	prober liveness.Prober
	log    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if necessary) the registry database at path. Schema
// initialization is serialized across processes with a file lock next to
// the database, so two concurrent first invocations cannot race the
// migration. The lock file is left on disk; removing it could invalidate a
// lock concurrently held by another process.
//
// A nil prober defaults to real process probing; a nil logger defaults to
// slog.Default().
func Open(ctx context.Context, path string, prober liveness.Prober, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("registry path must not be empty")
	}
	if prober == nil {
		prober = liveness.OS{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, schemaLockTimeout)
	defer cancel()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(lockCtx, schemaLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire registry schema lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire registry schema lock %s: lock not acquired", fl.Path())
	}
	defer func() {
		if closeErr := fl.Close(); closeErr != nil {
			logger.Debug("release registry schema lock", "path", fl.Path(), "error", closeErr)
		}
	}()

	// busy_timeout covers concurrent invocations holding short write
	// transactions; WAL matches the access pattern of many readers and
	// the occasional single-row write.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize registry schema: %w", err)
	}

	return &SQLite{db: db, prober: prober, log: logger}, nil
}

// Register implements Store.
func (s *SQLite) Register(ctx context.Context, rec Record) error {
	const stmt = `
		INSERT INTO instances (data_dir, port, pid, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(data_dir) DO UPDATE SET
			port = excluded.port,
			pid = excluded.pid,
			started_at = excluded.started_at
	`
	_, err := s.db.ExecContext(ctx, stmt,
		rec.DataDir, rec.Port, rec.PID, rec.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("register instance %s: %w", rec.DataDir, err)
	}
	return nil
}

// Unregister implements Store.
func (s *SQLite) Unregister(ctx context.Context, dataDir string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE data_dir = ?`, dataDir); err != nil {
		return fmt.Errorf("unregister instance %s: %w", dataDir, err)
	}
	return nil
}

// FindByDirectory implements Store. A row whose pid is dead is pruned and
// reported absent.
func (s *SQLite) FindByDirectory(ctx context.Context, dataDir string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data_dir, port, pid, started_at FROM instances WHERE data_dir = ?`, dataDir)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find instance by directory %s: %w", dataDir, err)
	}

	if !s.prober.Alive(rec.PID) {
		s.prune(ctx, rec)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// FindByPort implements Store. Rows are scanned in insertion order; dead
// candidates are pruned along the way and the first live match wins.
func (s *SQLite) FindByPort(ctx context.Context, port int) (Record, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_dir, port, pid, started_at FROM instances WHERE port = ? ORDER BY rowid`, port)
	if err != nil {
		return Record{}, false, fmt.Errorf("find instance by port %d: %w", port, err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	var candidates []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return Record{}, false, fmt.Errorf("scan instance row: %w", scanErr)
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, fmt.Errorf("iterate instance rows: %w", err)
	}

	for _, rec := range candidates {
		if s.prober.Alive(rec.PID) {
			return rec, true, nil
		}
		s.prune(ctx, rec)
	}
	return Record{}, false, nil
}

// List implements Store. Liveness probes for the sweep run concurrently;
// dead rows are pruned before the live set is returned.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_dir, port, pid, started_at FROM instances ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	var all []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan instance row: %w", scanErr)
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance rows: %w", err)
	}

	alive := make([]bool, len(all))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(pruneConcurrency)
	for idx, rec := range all {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			alive[idx] = s.prober.Alive(rec.PID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe instance liveness: %w", err)
	}

	live := all[:0]
	for idx, rec := range all {
		if alive[idx] {
			live = append(live, rec)
			continue
		}
		s.prune(ctx, rec)
	}
	if len(live) == 0 {
		return nil, nil
	}
	return live, nil
}

// Close implements Store. Safe to call more than once.
func (s *SQLite) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// prune removes a row discovered dead during a read. Best effort: a failed
// prune is logged and the row stays until the next read finds it.
func (s *SQLite) prune(ctx context.Context, rec Record) {
	s.log.Debug("pruning stale registry entry", "data_dir", rec.DataDir, "pid", rec.PID)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM instances WHERE data_dir = ? AND pid = ?`, rec.DataDir, rec.PID); err != nil {
		s.log.Warn("prune stale registry entry", "data_dir", rec.DataDir, "error", err)
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var started string
	if err := row.Scan(&rec.DataDir, &rec.Port, &rec.PID, &started); err != nil {
		return Record{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		// Timestamp is informational; a malformed one does not make the
		// row unusable.
		ts = time.Time{}
	}
	rec.StartedAt = ts
	return rec, nil
}
