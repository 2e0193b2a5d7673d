// Package fmusd implements the FMU settings daemon: a local HTTP API that
// brokers access to a user's `.fmu` configuration, FMU project settings
// directories, and RMS project handles on behalf of a frontend.
//
// All state lives in an in-memory session registry. A session is created
// against the user's home `.fmu` directory, carries a fixed time-to-live,
// and owns whatever it accumulates: an attached project settings directory
// (guarded by an advisory cross-process lock on disk), masked access
// tokens, and at most one open RMS project handle. Destroying or expiring a
// session releases the lock and closes the handle.
//
// The lock is cooperative. Holding it grants write access to the project's
// configuration; losing the race degrades the session to read-only rather
// than failing, and the holder can be inspected through the lock status
// endpoint.
package fmusd
