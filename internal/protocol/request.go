package protocol

import (
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/encoding/json"

	"github.com/wagiedev/daemonlink-go/internal/errors"
)

const (
	// IDLength is the length of an encoded correlation id.
	IDLength = ulid.EncodedSize

	// ScriptDelimiter separates commands within one batch script.
	ScriptDelimiter = " ;; "
)

// Command is one operation of a batch as sent to the daemon.
//
// Wire format:
//
//	<id> <op>
type Command struct {
	ID string
	Op string
}

// String returns the wire form of the command.
func (c Command) String() string {
	return c.ID + " " + c.Op
}

// NewID returns a fresh correlation id.
func NewID() string {
	return ulid.Make().String()
}

// EncodeScript joins cmds into the single newline-terminated line written to
// the daemon.
//
// Wire format:
//
//	<id1> <op1> ;; <id2> <op2>\n
func EncodeScript(cmds []Command) string {
	var sb strings.Builder

	for i, cmd := range cmds {
		if i > 0 {
			sb.WriteString(ScriptDelimiter)
		}

		sb.WriteString(cmd.String())
	}

	sb.WriteByte('\n')

	return sb.String()
}

// LineKind classifies one line read from a batch connection.
type LineKind int

const (
	// LineLog is an informational line unrelated to correlation.
	LineLog LineKind = iota
	// LineSuccess is an id-prefixed line with a valid JSON payload.
	LineSuccess
	// LineMalformed is an id-prefixed line whose payload is not valid JSON.
	LineMalformed
	// LineFatal is a line carrying the FATAL marker.
	LineFatal
)

func (k LineKind) String() string {
	switch k {
	case LineSuccess:
		return "success"
	case LineMalformed:
		return "malformed"
	case LineFatal:
		return "fatal"
	default:
		return "log"
	}
}

// Reply is a classified reply line.
type Reply struct {
	Kind LineKind
	Line string

	// ID and Payload are set for id-prefixed lines.
	ID      string
	Payload string

	// Value holds the decoded payload of a LineSuccess reply.
	Value any

	// Err holds the decode failure of a LineMalformed reply.
	Err error
}

// ClassifyLine decides what a line read from the daemon means for the batch.
//
// A line starting with a correlation id immediately followed by a payload is
// a success line if the payload decodes as JSON. A success-shaped line that
// fails to decode but carries FATAL is treated as a failure line, so the
// daemon's "<id>FATAL ..." replies reject instead of surfacing as parse
// errors. Any other line containing FATAL is a failure line; everything else
// is log output.
func ClassifyLine(line string) Reply {
	if id, payload, ok := splitIDPrefix(line); ok {
		var value any

		err := json.Unmarshal([]byte(payload), &value)
		if err == nil {
			return Reply{Kind: LineSuccess, Line: line, ID: id, Payload: payload, Value: value}
		}

		if !errors.IsFatal(line) {
			return Reply{Kind: LineMalformed, Line: line, ID: id, Payload: payload, Err: err}
		}

		return Reply{Kind: LineFatal, Line: line, ID: id, Payload: payload}
	}

	if errors.IsFatal(line) {
		return Reply{Kind: LineFatal, Line: line}
	}

	return Reply{Kind: LineLog, Line: line}
}

// splitIDPrefix splits a line into a leading correlation id and the
// non-empty remainder.
func splitIDPrefix(line string) (string, string, bool) {
	if len(line) <= IDLength {
		return "", "", false
	}

	id := line[:IDLength]
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", "", false
	}

	// ParseStrict accepts lower case; the daemon echoes ids as sent.
	if strings.ToUpper(id) != id {
		return "", "", false
	}

	return id, line[IDLength:], true
}
