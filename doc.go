// Package dbnest manages the local lifecycle of embedded database server
// instances: it launches a database engine over a data directory, fronts it
// with a TCP socket server, and tracks the running instance both in a lock
// file inside the data directory and in a durable registry shared by every
// dbnest process on the machine.
//
// # Basic Usage
//
//	import "github.com/dbnest/dbnest"
//
//	ctx := context.Background()
//
//	inst, err := dbnest.Start(ctx, "./data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Stop()
//
//	fmt.Println("serving on", inst.Endpoint())
//	<-inst.Done() // block until Stop() or SIGINT/SIGTERM
//
// # Stopping From Another Process
//
// The lock file and the registry let a fresh process find and stop an
// instance it did not start:
//
//	err := dbnest.StopByDirectory("./data")      // via the lock file
//	err = dbnest.StopByPort(ctx, 5432)           // via the registry
//
// Both send SIGTERM to the owning process, whose signal handler runs the
// same ordered shutdown as Instance.Stop. Neither waits for it to finish.
//
// # Engine Sizing
//
// At startup dbnest inspects the host and passes a recommended worker
// count, pool size and cache size to the engine; see the hardware package.
package dbnest
