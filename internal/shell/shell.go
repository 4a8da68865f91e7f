package shell

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/authflow"
	"github.com/giantswarm/tandem/internal/events"
	"github.com/giantswarm/tandem/internal/gate"
	"github.com/giantswarm/tandem/internal/identity"
	"github.com/giantswarm/tandem/internal/layout"
	"github.com/giantswarm/tandem/internal/session"
	"github.com/giantswarm/tandem/internal/vault"
	"github.com/giantswarm/tandem/pkg/logging"
)

// LoginStartedMessage is the status returned by BeginLogin.
const LoginStartedMessage = "Login started. Please check your browser."

// Options wires a Shell to its components.
type Options struct {
	Users    identity.Store
	Sessions *session.Registry
	Layout   *layout.Manager
	Gate     *gate.Gate
	Vault    *vault.Vault
	Auth     *authflow.Controller
	Bus      *events.Bus
	Messages *events.MessageTemplateEngine
	Clock    func() time.Time
}

// Shell is the control surface.
type Shell struct {
	users    identity.Store
	sessions *session.Registry
	layout   *layout.Manager
	gate     *gate.Gate
	vault    *vault.Vault
	auth     *authflow.Controller
	bus      *events.Bus
	messages *events.MessageTemplateEngine
	now      func() time.Time

	// mu serializes operations that touch more than one component.
	mu sync.Mutex

	unsubscribe func()
}

// New creates a Shell. Call Start before use and Close when done.
func New(opts Options) *Shell {
	if opts.Messages == nil {
		opts.Messages = events.NewMessageTemplateEngine()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Shell{
		users:    opts.Users,
		sessions: opts.Sessions,
		layout:   opts.Layout,
		gate:     opts.Gate,
		vault:    opts.Vault,
		auth:     opts.Auth,
		bus:      opts.Bus,
		messages: opts.Messages,
		now:      opts.Clock,
	}
}

// Start restores the last active user and begins consuming auth events.
func (s *Shell) Start(ctx context.Context) error {
	s.unsubscribe = s.bus.Handle(s.apply)

	active, err := s.users.Active()
	if err != nil {
		return err
	}
	if active == "" {
		return nil
	}

	if err := s.layout.SwitchTo(ctx, active); err != nil {
		if api.IsCode(err, api.CodeUnknownUser) {
			logging.Warn("Shell", "Last active user %s no longer exists", active)
			return s.users.SetActive("")
		}
		return err
	}
	logging.Info("Shell", "Restored last active user %s", active)
	return nil
}

// Close stops event processing and cancels any pending login.
func (s *Shell) Close() {
	s.auth.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Subscribe returns a channel of events for the presentation layer.
func (s *Shell) Subscribe() (<-chan api.Event, func()) {
	return s.bus.Subscribe()
}

// Message renders a one-line status message for ev.
func (s *Shell) Message(ev api.Event) string {
	return s.messages.Render(ev)
}

// apply keeps the identity list in step with auth outcomes. It runs on the
// publisher's goroutine and must not publish auth events itself.
func (s *Shell) apply(ev api.Event) {
	if ev.Type != api.EventAuthSucceeded || ev.UserID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.users.Update(ev.UserID, func(u *api.User) {
		u.IsAuthenticated = true
		if ev.Claims != nil {
			if ev.Claims.Email != "" {
				u.Email = ev.Claims.Email
			}
			if ev.Claims.Picture != "" {
				u.Picture = ev.Claims.Picture
			}
		}
	})
	if api.IsCode(err, api.CodeUnknownUser) {
		// The user was removed while the login was finishing and the
		// token saved after RemoveUser cleared the vault.
		logging.Warn("Shell", "Sign-in completed for removed user %s, discarding its token", ev.UserID)
		if err := s.vault.Delete(context.Background(), ev.UserID); err != nil {
			logging.Error("Shell", err, "Failed to discard token for removed user %s", ev.UserID)
		}
		return
	}
	if err != nil {
		logging.Error("Shell", err, "Failed to record sign-in for user %s", ev.UserID)
		return
	}
	s.publishUsersChanged(ev.UserID)
}

func (s *Shell) publishUsersChanged(userID string) {
	s.bus.Publish(api.Event{Type: api.EventUsersChanged, UserID: userID, Time: s.now()})
}

// ListUsers returns all users.
func (s *Shell) ListUsers() ([]api.User, error) {
	return s.users.List()
}

// GetUser returns one user.
func (s *Shell) GetUser(id string) (*api.User, error) {
	return s.users.GetUser(id)
}

// CreateUser adds a user with a fresh id.
func (s *Shell) CreateUser(name string) (*api.User, error) {
	if _, err := identity.ValidateName(name); err != nil {
		return nil, api.InvalidIdentity("create_user", name, err.Error())
	}

	u, err := s.users.Create(name)
	if err != nil {
		return nil, err
	}
	logging.Info("Shell", "Created user %s (%s)", u.ID, u.Name)
	s.publishUsersChanged(u.ID)
	return u, nil
}

// RenameUser changes a user's display name.
func (s *Shell) RenameUser(id, name string) (*api.User, error) {
	if _, err := identity.ValidateName(name); err != nil {
		return nil, api.InvalidIdentity("rename_user", id, err.Error())
	}

	u, err := s.users.Rename(id, name)
	if err != nil {
		return nil, err
	}
	s.publishUsersChanged(u.ID)
	return u, nil
}

// RemoveUser deletes a user together with its browsing data and token.
func (s *Shell) RemoveUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetUser(id)
	if err != nil {
		return err
	}

	if p, ok := s.auth.Pending(); ok && p.UserID == u.ID {
		s.auth.Close()
	}

	var errs []error
	if err := s.layout.Forget(ctx, u.ID); err != nil {
		errs = append(errs, err)
	}
	if err := s.sessions.Release(ctx, u.ID); err != nil {
		errs = append(errs, err)
	}
	if err := s.vault.Delete(ctx, u.ID); err != nil {
		errs = append(errs, err)
	}
	if err := s.users.Remove(u.ID); err != nil {
		errs = append(errs, err)
	}
	if primary := s.layout.State().Primary; primary != "" {
		if err := s.users.SetActive(primary); err != nil {
			errs = append(errs, err)
		}
	}

	logging.Info("Shell", "Removed user %s", u.ID)
	s.publishUsersChanged(u.ID)
	return errors.Join(errs...)
}

// ActivateUser shows id alone and records it as the last active user.
func (s *Shell) ActivateUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.layout.SwitchTo(ctx, id); err != nil {
		return err
	}
	return s.touch(s.layout.State().Primary)
}

// ActivateSplit shows primary and secondary side by side.
func (s *Shell) ActivateSplit(ctx context.Context, primary, secondary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.layout.EnableSplit(ctx, primary, secondary); err != nil {
		return err
	}
	state := s.layout.State()
	if !state.IsSplit() {
		return nil
	}
	if err := s.touch(state.Secondary); err != nil {
		return err
	}
	return s.touch(state.Primary)
}

// touch updates LastActive and makes id the active user.
func (s *Shell) touch(id string) error {
	now := s.now()
	if _, err := s.users.Update(id, func(u *api.User) { u.LastActive = now }); err != nil {
		return err
	}
	if err := s.users.SetActive(id); err != nil {
		return err
	}
	s.publishUsersChanged(id)
	return nil
}

// ClearUserData wipes the target's cookies and storage after the gate
// approves principal. A visible user gets a fresh context immediately.
func (s *Shell) ClearUserData(ctx context.Context, principal api.Principal, targetID string) error {
	if err := s.gate.AuthorizeDataClear(principal, targetID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := api.NormalizeUserID(targetID)
	if err := s.sessions.ClearData(ctx, target); err != nil {
		return err
	}
	logging.Audit("data_cleared", "Browsing data cleared",
		"principal", principal.String(), "target_user", target)
	return s.layout.Refresh(ctx)
}

// Layout returns the current layout state and regions.
func (s *Shell) Layout() (api.LayoutState, []layout.Region) {
	return s.layout.State(), s.layout.Regions()
}

// Resize applies new window bounds.
func (s *Shell) Resize(ctx context.Context, b api.Bounds) error {
	return s.layout.OnResize(ctx, b)
}

// resolveTarget returns id, or the active primary when id is empty, after
// checking that the user exists.
func (s *Shell) resolveTarget(op, id string) (string, error) {
	id = api.NormalizeUserID(id)
	if id == "" {
		id = s.layout.State().Primary
	}
	if id == "" {
		active, err := s.users.Active()
		if err != nil {
			return "", err
		}
		id = active
	}
	if id == "" {
		return "", api.InvalidIdentity(op, id, "no user given and no active user")
	}
	if _, err := s.users.GetUser(id); err != nil {
		return "", err
	}
	return id, nil
}

// LoginStatus is the synchronous result of BeginLogin.
type LoginStatus struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
	AuthURL string `json:"authUrl"`
}

// BeginLogin starts a sign-in for id, or for the active user when id is
// empty. It returns as soon as the browser was asked to open; the outcome
// follows as an auth.* event.
func (s *Shell) BeginLogin(ctx context.Context, id string) (*LoginStatus, error) {
	userID, err := s.resolveTarget("begin_login", id)
	if err != nil {
		return nil, err
	}

	authURL, err := s.auth.StartLogin(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &LoginStatus{UserID: userID, Message: LoginStartedMessage, AuthURL: authURL}, nil
}

// EndSession signs id out: the token record is deleted whether or not one
// exists, and the user is marked unauthenticated.
func (s *Shell) EndSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := api.NormalizeUserID(id)
	if userID == "" {
		resolved, err := s.resolveTarget("end_session", "")
		if err != nil {
			return err
		}
		userID = resolved
	}

	if err := s.vault.Delete(ctx, userID); err != nil {
		return err
	}

	_, err := s.users.Update(userID, func(u *api.User) {
		u.IsAuthenticated = false
		u.Email = ""
		u.Picture = ""
	})
	if err != nil {
		return err
	}
	logging.Info("Shell", "Signed out user %s", userID)
	s.publishUsersChanged(userID)
	return nil
}

// CurrentAccessToken returns a valid access token for id, or for the
// active user when id is empty. ok is false when the user must sign in
// again; the reason is not reported.
func (s *Shell) CurrentAccessToken(ctx context.Context, id string) (tok *oauth2.Token, ok bool, err error) {
	userID, err := s.resolveTarget("current_access_token", id)
	if err != nil {
		return nil, false, err
	}
	tok, ok = s.vault.LoadAccessToken(ctx, userID)
	return tok, ok, nil
}

// AuthStatus describes a user's sign-in state.
type AuthStatus struct {
	UserID        string       `json:"userId"`
	Authenticated bool         `json:"authenticated"`
	Email         string       `json:"email,omitempty"`
	Token         vault.Status `json:"token"`
	LoginState    string       `json:"loginState"`
	LoginPending  bool         `json:"loginPending"`
}

// AuthStatus reports id's stored token and the login state machine.
func (s *Shell) AuthStatus(id string) (*AuthStatus, error) {
	userID, err := s.resolveTarget("auth_status", id)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(userID)
	if err != nil {
		return nil, err
	}
	st, err := s.vault.Status(userID)
	if err != nil {
		return nil, err
	}

	out := &AuthStatus{
		UserID:        userID,
		Authenticated: u.IsAuthenticated,
		Email:         u.Email,
		Token:         st,
		LoginState:    s.auth.State().String(),
	}
	if p, ok := s.auth.Pending(); ok && p.UserID == userID {
		out.LoginPending = true
	}
	return out, nil
}

// OAuthConfigured reports whether sign-in is available.
func (s *Shell) OAuthConfigured() bool {
	return s.auth.Configured()
}

// Reload reconciles the layout and sessions after the identity file was
// changed by another process.
func (s *Shell) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	state := s.layout.State()
	for _, id := range []string{state.Secondary, state.Primary} {
		if id == "" {
			continue
		}
		if _, err := s.users.GetUser(id); api.IsCode(err, api.CodeUnknownUser) {
			logging.Info("Shell", "User %s was removed externally", id)
			if err := s.layout.Forget(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, bc := range s.sessions.Contexts() {
		if _, err := s.users.GetUser(bc.UserID); api.IsCode(err, api.CodeUnknownUser) {
			if err := s.sessions.Release(ctx, bc.UserID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s.publishUsersChanged("")
	return errors.Join(errs...)
}

// Sessions exposes the registry for transports that bind per-context
// endpoints.
func (s *Shell) Sessions() *session.Registry {
	return s.sessions
}

// Gate exposes the authorization gate.
func (s *Shell) Gate() *gate.Gate {
	return s.gate
}
