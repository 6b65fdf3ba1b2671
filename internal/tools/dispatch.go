// ABOUTME: Tool dispatcher: schema validation, scope check, handler run and audit
// ABOUTME: Send-style tools produce exactly one audit record whatever the outcome

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/inline-mcp/internal/audit"
	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
)

// Dispatcher routes tools/call requests to registered tools.
type Dispatcher struct {
	registry *Registry
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over registry. A nil auditor discards
// audit records.
func NewDispatcher(registry *Registry, auditor *audit.Logger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = audit.NewLogger(logger)
	}
	return &Dispatcher{
		registry: registry,
		audit:    auditor,
		logger:   logger.With("component", "tools"),
	}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Call runs the named tool. Only an unknown tool name is returned as an
// error; every other failure is an error result.
func (d *Dispatcher) Call(ctx context.Context, grant *auth.Grant, client inline.Client, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := otel.Tracer("github.com/2389/inline-mcp/internal/tools").Start(ctx, "tools.call")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))
	if grant != nil {
		span.SetAttributes(attribute.String("grant.id", grant.ID))
	}

	var trail *audit.Trail
	if tool.Audited {
		trail = &audit.Trail{}
		if id, err := ParseID("chatId", args["chatId"]); err == nil {
			trail.SetChat(id)
		}
		ctx = audit.WithTrail(ctx, trail)
	}

	start := time.Now()
	result, err := d.run(ctx, tool, grant, client, args)

	if trail != nil {
		d.recordAudit(ctx, grant, trail, err)
	}

	if err != nil {
		body := classify(err)
		span.SetStatus(codes.Error, body.Error)
		level := slog.LevelInfo
		if body.Error == CodeInternal {
			level = slog.LevelError
		}
		d.logger.Log(ctx, level, "tool call failed",
			"tool", name,
			"code", body.Error,
			"error", err,
			"duration", time.Since(start),
		)
		return errorResult(err), nil
	}

	d.logger.Debug("tool call complete", "tool", name, "duration", time.Since(start))
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, tool *Tool, grant *auth.Grant, client inline.Client, args map[string]any) (*mcp.CallToolResult, error) {
	if err := tool.resolved.Validate(args); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("%s: %v", tool.Name, err)}
	}

	if !slices.Contains(auth.ResolveEffectiveScopes(ctx, grant), tool.RequiredScope) {
		return nil, &ScopeError{Tool: tool.Name, Scope: tool.RequiredScope}
	}

	out, err := tool.Handler(ctx, &Call{Tool: tool.Name, Args: Args(args), Grant: grant, Client: client})
	if err != nil {
		return nil, err
	}
	return structuredResult(out)
}

// structuredResult wraps v as one JSON text item plus structured content.
func structuredResult(v any) (*mcp.CallToolResult, error) {
	text, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(string(text))},
		StructuredContent: v,
	}, nil
}

func (d *Dispatcher) recordAudit(ctx context.Context, grant *auth.Grant, trail *audit.Trail, err error) {
	chatID, spaceID, messageID, failed := trail.Snapshot()
	outcome := audit.Success
	if err != nil || failed {
		outcome = audit.Failure
	}

	var grantID string
	var userID int64
	if grant != nil {
		grantID, userID = grant.ID, grant.InlineUserID
	}
	d.audit.Record(ctx, outcome, grantID, userID, chatID, spaceID, messageID)
}
