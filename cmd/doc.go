// Package cmd implements the command-line interface of srvcoord, a coordinator
// for servers shared by many users. It provides commands to lock and unlock sets
// of servers and to inspect the current locks.
//
// The package is organized into several subpackages:
//
//   - lock: Commands to acquire and release locks (lock, trylock, unlock)
//   - check: Commands to inspect and clear locks (check, unlockall)
//   - exporter: Serves the current locks as Prometheus metrics
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set with environment variables SRVCOORD_<FLAG> (e.g. SRVCOORD_REDIS_URL)
// or in a .env / .env.local file. See srvcoord -help for a list of all commands.
package cmd
