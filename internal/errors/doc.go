// Package errors defines error types for daemonlink.
//
// This package provides structured error types for every failure a caller
// can observe: the daemon not being ready, a reply that cannot be decoded, a
// FATAL line from the daemon, a broken socket connection, and daemon process
// exits. All error types support unwrapping and can be checked using
// errors.Is, errors.As, and errors.AsType.
package errors
