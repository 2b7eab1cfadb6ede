package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/segmentio/encoding/json"
)

const (
	// InteractToolName is the name of the batch interaction tool.
	InteractToolName = "interact"

	// StatusToolName is the name of the daemon status tool.
	StatusToolName = "status"
)

// Daemon is the part of the client the MCP tools need.
type Daemon interface {
	Interact(ctx context.Context, ops ...string) ([]any, error)
	Active() bool
	PID() int
	SocketPath() string
}

// NewServer creates an MCP server whose tools operate on daemon.
func NewServer(log *slog.Logger, name, version string, daemon Daemon) *mcp.Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	log = log.With("component", "mcp")

	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	server.AddTool(
		NewTool(InteractToolName,
			"Send operations to the daemon as one batch and return their results in order",
			SimpleSchema(map[string]string{"operations": "[]string"}),
		),
		interactHandler(log, daemon),
	)

	server.AddTool(
		NewTool(StatusToolName,
			"Report whether the daemon is listening, its pid and socket path",
			&jsonschema.Schema{Type: "object"},
		),
		statusHandler(daemon),
	)

	return server
}

// Serve runs server over transport until the client disconnects or ctx ends.
func Serve(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	if err := server.Run(ctx, transport); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}

	return nil
}

func interactHandler(log *slog.Logger, daemon Daemon) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := ParseArguments(req)
		if err != nil {
			return ErrorResult(err.Error()), nil //nolint:nilerr // the error is reported in the result
		}

		ops, err := stringSlice(args["operations"])
		if err != nil {
			return ErrorResult(err.Error()), nil //nolint:nilerr // the error is reported in the result
		}

		log.Debug("Interact tool called", "operations", len(ops))

		values, err := daemon.Interact(ctx, ops...)
		if err != nil {
			log.Warn("Interact tool failed", "error", err)

			return ErrorResult(err.Error()), nil
		}

		data, err := json.Marshal(values)
		if err != nil {
			return ErrorResult("encode results: " + err.Error()), nil
		}

		return TextResult(string(data)), nil
	}
}

func statusHandler(daemon Daemon) mcp.ToolHandler {
	return func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := DaemonStatus{
			Active:     daemon.Active(),
			PID:        daemon.PID(),
			SocketPath: daemon.SocketPath(),
		}

		data, err := json.Marshal(status)
		if err != nil {
			return ErrorResult("encode status: " + err.Error()), nil
		}

		return TextResult(string(data)), nil
	}
}

func stringSlice(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("operations must be an array of strings")
	}

	ops := make([]string, 0, len(items))

	for i, item := range items {
		op, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("operations[%d] must be a string", i)
		}

		ops = append(ops, op)
	}

	return ops, nil
}

// SimpleSchema creates a jsonschema.Schema from a simple type map.
//
// Input format: {"a": "float64", "b": "[]string"}
// Every property is required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	required := make([]string, 0, len(props))

	for name, goType := range props {
		properties[name] = goTypeToJSONSchema(goType)
		required = append(required, name)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// goTypeToJSONSchema converts a Go type string to a JSON Schema type.
func goTypeToJSONSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int64", "uint32":
		return &jsonschema.Schema{Type: "integer"}
	case "float64", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool":
		return &jsonschema.Schema{Type: "boolean"}
	default:
		if len(goType) > 2 && goType[:2] == "[]" {
			return &jsonschema.Schema{
				Type:  "array",
				Items: goTypeToJSONSchema(goType[2:]),
			}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}

// NewTool creates an mcp.Tool with the given parameters.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *mcp.Tool {
	return &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// ParseArguments unmarshals CallToolRequest arguments into a map.
func ParseArguments(req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return make(map[string]any), nil
	}

	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	return args, nil
}
