package errors

import "strings"

const (
	// FatalMarker identifies a failure line in daemon output.
	FatalMarker = "FATAL"

	credentialConnectMarker = "DBI connect"
	credentialAuthMarker    = "password authentication"
)

// IsFatal reports whether text carries the daemon's FATAL marker.
func IsFatal(text string) bool {
	return strings.Contains(text, FatalMarker)
}

// IsCredentialFailureLine reports whether a FATAL line describes a database
// connect that was refused for its password.
func IsCredentialFailureLine(line string) bool {
	return IsFatal(line) &&
		strings.Contains(line, credentialConnectMarker) &&
		strings.Contains(line, credentialAuthMarker)
}
