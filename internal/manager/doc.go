// Package manager orchestrates model resolution, download, and load against
// the local inference daemon. It is structured into small files by concern:
//
//   - manager.go: core Manager type, Config, constructor, listing helpers.
//   - download.go: transfer to staging, integrity check, cache commit, and
//     the progress-event producer; one in-flight transfer per model id.
//   - load.go: load/unload requests against the daemon.
//
// The manager never interprets inference traffic; it only prepares models
// and asks the daemon to serve them. External packages should use public
// methods only; internal types are subject to change.
package manager
