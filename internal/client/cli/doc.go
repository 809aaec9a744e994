// Package cli provides the interactive food delivery command-line client.
//
// It wires configuration, the local credential store, the auth API client and
// a session, then runs a REPL. A session saved by an earlier run is resumed
// at start-up; while it is open the session renews its access token in the
// background and the REPL reports once if a failed renewal ends it.
//
// Commands:
//   - register, login
//   - me, status
//   - logout, logout-all
//   - exit | quit
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
