// Package linesplit frames a byte stream into newline-terminated lines.
//
// Both the daemon's standard streams and every socket connection deliver
// data in chunks whose boundaries have nothing to do with line boundaries.
// A Splitter carries the trailing partial line from one chunk to the next so
// callers only ever see complete lines.
package linesplit
