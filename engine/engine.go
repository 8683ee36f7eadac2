// Package engine defines the boundary between dbnest and the external
// database engine it supervises. The engine itself — query execution, wire
// protocol — is a pre-built collaborator; dbnest only orchestrates its
// lifecycle through the narrow interfaces declared here.
//
// Implementations are injectable so that the supervisor can be exercised in
// tests without launching real processes. The default implementations live
// in internal packages and are wired up by the root dbnest package.
package engine

import "context"

// Tuning is the advisory configuration handed to the engine at construction.
// The engine is free to interpret or ignore it; dbnest only computes the
// recommendation (see the hardware package) and passes it through.
type Tuning struct {
	// Workers is the recommended number of engine worker threads.
	Workers int
	// PoolSize is the recommended connection pool size.
	PoolSize int
	// CacheSizeMB is the recommended cache size in mebibytes.
	CacheSizeMB int
}

// Engine is a handle to a constructed database engine serving a single data
// directory. An Engine accepts connections on a local address (typically a
// unix domain socket inside the data directory) that the socket server
// relays client traffic to.
type Engine interface {
	// Addr returns the network and address the engine accepts
	// connections on, in net.Dial form (e.g. "unix", "/data/engine.sock").
	Addr() (network, addr string)

	// Close shuts the engine down. Implementations must treat the
	// engine's own expected termination signal as success: an engine
	// that exits because it was asked to stop has not failed.
	Close(ctx context.Context) error
}

// Opener constructs an Engine over a data directory. Construction includes
// making the engine ready to accept connections; any failure is terminal
// for the startup attempt and is surfaced to the caller unmodified.
type Opener interface {
	Open(ctx context.Context, dataDir string, tuning Tuning) (Engine, error)
}

// ServerConfig configures a SocketServer for one engine.
type ServerConfig struct {
	// Engine is the backend the server relays client connections to.
	Engine Engine
	// Host and Port form the TCP address the server binds.
	Host string
	Port int
	// InspectProtocol enables logging of relayed protocol traffic.
	InspectProtocol bool
}

// SocketServer fronts an Engine on a TCP port. It owns no engine lifecycle:
// stopping the server does not close the engine.
type SocketServer interface {
	// Start binds the configured address and begins accepting
	// connections. A bind failure (e.g. port in use) is returned
	// verbatim; the caller must intervene, there is no retry.
	Start(ctx context.Context) error

	// Stop closes the listener and any active connections. Idempotent.
	Stop(ctx context.Context) error

	// OnError registers a callback for non-fatal serving errors
	// (per-connection failures, relay errors). Such errors are reported
	// and forgotten; they never escalate to process exit.
	OnError(fn func(error))
}

// ServerFactory constructs SocketServers. Injected into the supervisor so
// tests can substitute fakes.
type ServerFactory interface {
	New(cfg ServerConfig) (SocketServer, error)
}
