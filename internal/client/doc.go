// Package client implements the Client that pairs a supervised daemon with
// batch interactions over its socket.
//
// The client package owns one supervisor and one protocol client. It enables:
//   - Starting, stopping and restarting the daemon
//   - Sending batches of operations once the daemon is listening
//   - Restarting the daemon when it reports rotated database credentials
//
// Interactions never wait for the daemon: while it is not listening they fail
// immediately with ErrNotActive.
package client
