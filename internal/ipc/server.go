package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/shell"
	"github.com/giantswarm/tandem/pkg/logging"
)

// AuthNotification is the method used to push auth events.
const AuthNotification = "notifications/tandem/auth"

// UsersNotification is the method used when the user list changed.
const UsersNotification = "notifications/tandem/users"

// Server is the MCP control surface.
type Server struct {
	shell     *shell.Shell
	mcpServer *server.MCPServer
}

// NewServer creates a Server for sh.
func NewServer(sh *shell.Shell, version string) *Server {
	mcpServer := server.NewMCPServer(
		"tandem",
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{shell: sh, mcpServer: mcpServer}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve runs the stdio transport on in/out until ctx is cancelled or the
// client disconnects. Auth events are forwarded while it runs.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, unsubscribe := s.shell.Subscribe()
	defer unsubscribe()
	go s.forward(ctx, ch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("IPC", "sd_notify failed: %v", err)
	} else if ok {
		logging.Debug("IPC", "Notified systemd of readiness")
	}

	logging.Info("IPC", "Serving MCP control surface on stdio")
	stdio := server.NewStdioServer(s.mcpServer)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) forward(ctx context.Context, ch <-chan api.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			method, params := s.notification(ev)
			if method == "" {
				continue
			}
			s.mcpServer.SendNotificationToAllClients(method, params)
		}
	}
}

// notification converts ev into an MCP notification.
func (s *Server) notification(ev api.Event) (string, map[string]any) {
	params := map[string]any{
		"type":    string(ev.Type),
		"userId":  ev.UserID,
		"message": s.shell.Message(ev),
	}

	switch ev.Type {
	case api.EventAuthSucceeded:
		params["accessToken"] = ev.AccessToken
		if ev.Claims != nil {
			params["profile"] = ev.Claims
		}
		return AuthNotification, params
	case api.EventAuthFailed, api.EventAuthTimedOut:
		params["code"] = string(ev.Code)
		params["error"] = ev.Message
		return AuthNotification, params
	case api.EventUsersChanged:
		return UsersNotification, params
	default:
		return "", nil
	}
}

// errorResult turns err into a tool error carrying the error code.
func errorResult(err error) *mcp.CallToolResult {
	payload := map[string]string{"message": err.Error()}
	if code := api.CodeOf(err); code != "" {
		payload["code"] = string(code)
	}
	data, _ := json.Marshal(payload)
	return mcp.NewToolResultError(string(data))
}

// jsonResult marshals v as the tool's text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
