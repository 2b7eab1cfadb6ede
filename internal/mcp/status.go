package mcp

// DaemonStatus is the payload of the status tool.
type DaemonStatus struct {
	Active     bool   `json:"active"`
	PID        int    `json:"pid"`
	SocketPath string `json:"socket_path,omitempty"` //nolint:tagliatelle // matches the daemon's event naming
}
