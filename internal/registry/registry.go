// Package registry maintains the durable, process-wide index of running
// instances. Unlike the per-directory lock file, the registry spans all data
// directories, which is what makes "stop by port" possible from a fresh
// invocation of the tool.
//
// The registry shares the lock store's self-healing stance: a row whose pid
// is no longer alive is pruned lazily by whichever read discovers it.
package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Record identifies one running instance. DataDir is the primary key; Port
// is a secondary, possibly ambiguous lookup key.
type Record struct {
	DataDir   string
	Port      int
	PID       int
	StartedAt time.Time
}

// Store is the durable instance index. Implementations prune entries whose
// pid is dead as a side effect of reads.
type Store interface {
	// Register inserts or overwrites the entry for rec.DataDir.
	Register(ctx context.Context, rec Record) error

	// Unregister removes the entry for dataDir. Removing a missing entry
	// is not an error.
	Unregister(ctx context.Context, dataDir string) error

	// FindByDirectory returns the live entry for dataDir, if any.
	FindByDirectory(ctx context.Context, dataDir string) (Record, bool, error)

	// FindByPort returns the first live entry bound to port, in
	// registration order. Duplicate ports are tolerated: the first live
	// match wins and no error is raised for the ambiguity.
	FindByPort(ctx context.Context, port int) (Record, bool, error)

	// List returns all live entries, pruning dead ones.
	List(ctx context.Context) ([]Record, error)

	// Close releases the store's resources.
	Close() error
}

// DefaultPath returns the default location of the registry database,
// under the XDG state directory (e.g. ~/.local/state/dbnest/registry.db).
func DefaultPath() string {
	return filepath.Join(xdg.StateHome, "dbnest", "registry.db")
}
