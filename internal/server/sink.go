package server

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ilcreatore32/godoo-mcp/internal/handlers"
)

// notificationSink forwards handler telemetry to the MCP client as logging
// and progress notifications. The client session is looked up from the
// request context; outside a session everything is dropped.
type notificationSink struct{}

func (s *Server) sink() handlers.LogContext {
	return notificationSink{}
}

func (notificationSink) Info(ctx context.Context, msg string) error {
	return notify(ctx, "info", msg)
}

func (notificationSink) Warning(ctx context.Context, msg string) error {
	return notify(ctx, "warning", msg)
}

func (notificationSink) Progress(ctx context.Context, current, total float64) error {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	return srv.SendNotificationToClient(ctx, "notifications/progress", map[string]interface{}{
		"progress": current,
		"total":    total,
	})
}

func notify(ctx context.Context, level, msg string) error {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	return srv.SendNotificationToClient(ctx, "notifications/message", map[string]interface{}{
		"level": level,
		"data":  msg,
	})
}
