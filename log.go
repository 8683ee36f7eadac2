package dbnest

import (
	"log/slog"

	"github.com/dbnest/dbnest/internal/core"
)

// SetLogger replaces the package-level logger used by dbnest. If l is nil,
// the logger resets to slog.Default() with a "component" attribute.
//
// SetLogger is safe to call concurrently with other dbnest operations.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
