package daemonlink

import (
	"github.com/wagiedev/daemonlink-go/internal/config"
	"github.com/wagiedev/daemonlink-go/internal/protocol"
)

// Re-export types from internal packages

// ===== Options and Configuration =====

// Options configures the daemon and the interaction client.
type Options = config.Options

// Credential is the uid/gid the daemon is spawned with.
type Credential = config.Credential

// Dialer opens a connection to the daemon's socket.
type Dialer = config.Dialer

// ===== Lifecycle Events =====

// Event is an active/inactive notification for one daemon process.
type Event = config.Event

// EventType identifies a lifecycle notification.
type EventType = config.EventType

const (
	// EventActive is emitted when the daemon reports it is listening.
	EventActive = config.EventActive
	// EventInactive is emitted when the daemon process has exited.
	EventInactive = config.EventInactive
)

// ===== Results =====

// Result is the outcome of one operation of a batch.
type Result = protocol.Result
