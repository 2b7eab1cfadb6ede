// Package mcp exposes the daemon as a Model Context Protocol server.
//
// The server registers two tools: interact, which sends a batch of operations
// to the daemon and returns their values, and status, which reports whether
// the daemon is listening. It is served over stdio by the daemonlink mcp
// command.
package mcp
