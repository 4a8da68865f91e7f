package ipc

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/tandem/internal/api"
)

// registerTools registers one tool per control-surface operation.
func (s *Server) registerTools() {
	userID := func(required bool) mcp.ToolOption {
		if required {
			return mcp.WithString("id", mcp.Required(), mcp.Description("User id"))
		}
		return mcp.WithString("id", mcp.Description("User id, defaults to the active user"))
	}

	s.mcpServer.AddTool(mcp.NewTool("list_users",
		mcp.WithDescription("List all users"),
	), s.handleListUsers)

	s.mcpServer.AddTool(mcp.NewTool("create_user",
		mcp.WithDescription("Create a user with its own isolated browsing context"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
	), s.handleCreateUser)

	s.mcpServer.AddTool(mcp.NewTool("rename_user",
		mcp.WithDescription("Change a user's display name"),
		userID(true),
		mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
	), s.handleRenameUser)

	s.mcpServer.AddTool(mcp.NewTool("remove_user",
		mcp.WithDescription("Remove a user together with its browsing data and stored token"),
		userID(true),
	), s.handleRemoveUser)

	s.mcpServer.AddTool(mcp.NewTool("activate_user",
		mcp.WithDescription("Show a single user"),
		userID(true),
	), s.handleActivateUser)

	s.mcpServer.AddTool(mcp.NewTool("activate_split",
		mcp.WithDescription("Show two users side by side"),
		mcp.WithString("primary", mcp.Required(), mcp.Description("User shown on the left")),
		mcp.WithString("secondary", mcp.Required(), mcp.Description("User shown on the right")),
	), s.handleActivateSplit)

	s.mcpServer.AddTool(mcp.NewTool("clear_user_data",
		mcp.WithDescription("Wipe a user's cookies and storage"),
		userID(true),
	), s.handleClearUserData)

	s.mcpServer.AddTool(mcp.NewTool("begin_login",
		mcp.WithDescription("Start a browser sign-in; the outcome arrives as "+AuthNotification),
		userID(false),
	), s.handleBeginLogin)

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("Sign a user out and delete the stored token"),
		userID(false),
	), s.handleEndSession)

	s.mcpServer.AddTool(mcp.NewTool("current_access_token",
		mcp.WithDescription("Return a valid access token, or none if the user must sign in"),
		userID(false),
	), s.handleCurrentAccessToken)

	s.mcpServer.AddTool(mcp.NewTool("auth_status",
		mcp.WithDescription("Describe a user's sign-in state"),
		userID(false),
	), s.handleAuthStatus)

	s.mcpServer.AddTool(mcp.NewTool("get_layout",
		mcp.WithDescription("Return the visible users and their regions"),
	), s.handleGetLayout)

	s.mcpServer.AddTool(mcp.NewTool("resize",
		mcp.WithDescription("Apply new window bounds"),
		mcp.WithNumber("x", mcp.Description("Window x")),
		mcp.WithNumber("y", mcp.Description("Window y")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Window width")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Window height")),
	), s.handleResize)

	s.mcpServer.AddTool(mcp.NewTool("list_contexts",
		mcp.WithDescription("List live browsing contexts"),
	), s.handleListContexts)
}

func (s *Server) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	users, err := s.shell.ListUsers()
	if err != nil {
		return errorResult(err), nil
	}
	if users == nil {
		users = []api.User{}
	}
	return jsonResult(users)
}

func (s *Server) handleCreateUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	u, err := s.shell.CreateUser(name)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(u)
}

func (s *Server) handleRenameUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	u, err := s.shell.RenameUser(id, name)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(u)
}

func (s *Server) handleRemoveUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	if err := s.shell.RemoveUser(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("removed " + id), nil
}

func (s *Server) handleActivateUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	if err := s.shell.ActivateUser(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return s.handleGetLayout(ctx, request)
}

func (s *Server) handleActivateSplit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	primary := request.GetString("primary", "")
	secondary := request.GetString("secondary", "")
	if err := s.shell.ActivateSplit(ctx, primary, secondary); err != nil {
		return errorResult(err), nil
	}
	return s.handleGetLayout(ctx, request)
}

func (s *Server) handleClearUserData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if err := s.shell.ClearUserData(ctx, api.ControlSurface(), id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("cleared " + id), nil
}

func (s *Server) handleBeginLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.shell.BeginLogin(ctx, request.GetString("id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(status)
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.shell.EndSession(ctx, request.GetString("id", "")); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("signed out"), nil
}

// tokenResult is what current_access_token returns.
type tokenResult struct {
	Present     bool   `json:"present"`
	AccessToken string `json:"accessToken,omitempty"`
	TokenType   string `json:"tokenType,omitempty"`
	Expiry      string `json:"expiry,omitempty"`
}

func (s *Server) handleCurrentAccessToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tok, ok, err := s.shell.CurrentAccessToken(ctx, request.GetString("id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if !ok {
		return jsonResult(tokenResult{})
	}
	res := tokenResult{Present: true, AccessToken: tok.AccessToken, TokenType: tok.Type()}
	if !tok.Expiry.IsZero() {
		res.Expiry = tok.Expiry.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return jsonResult(res)
}

func (s *Server) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.shell.AuthStatus(request.GetString("id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(st)
}

func (s *Server) handleGetLayout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, regions := s.shell.Layout()
	return jsonResult(map[string]any{
		"state":   state,
		"regions": regions,
	})
}

func (s *Server) handleResize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b := api.Bounds{
		X:      request.GetInt("x", 0),
		Y:      request.GetInt("y", 0),
		Width:  request.GetInt("width", 0),
		Height: request.GetInt("height", 0),
	}
	if err := s.shell.Resize(ctx, b); err != nil {
		return errorResult(err), nil
	}
	return s.handleGetLayout(ctx, request)
}

func (s *Server) handleListContexts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.shell.Sessions().Contexts())
}
