package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
	"github.com/giantswarm/tandem/pkg/oauth"
)

const (
	// DefaultLoginTimeout is how long a login waits for the provider redirect.
	DefaultLoginTimeout = 2 * time.Minute

	// exchangeTimeout bounds the code-for-token request.
	exchangeTimeout = 30 * time.Second

	// discoveryTimeout bounds provider discovery in StartLogin.
	discoveryTimeout = 15 * time.Second
)

// State is the login state machine's position.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePending:
		return "Pending"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// TokenSaver persists the refresh token produced by a successful login.
type TokenSaver interface {
	Save(ctx context.Context, userID, refreshToken string) error
}

// Options configures a Controller.
type Options struct {
	// Provider is the authorization server. Nil means OAuth is not
	// configured and every StartLogin fails with NotConfigured.
	Provider Provider
	// Vault receives refresh tokens.
	Vault TokenSaver
	// Events receives auth.* events.
	Events api.EventSink
	// OpenBrowser hands the authorization URL to the user's browser.
	OpenBrowser func(url string) error
	// CallbackPort is the primary loopback port.
	CallbackPort int
	// Timeout is the login deadline, measured from a successful bind.
	Timeout time.Duration
	// Listen overrides net.Listen.
	Listen ListenFunc
}

// Pending describes the live login attempt.
type Pending struct {
	UserID      string
	RedirectURI string
	ExpiresAt   time.Time
}

// attempt is one login: the PKCE session plus the listener that serves it.
type attempt struct {
	userID      string
	pkce        *oauth.PKCEChallenge // nil once consumed, cancelled or expired
	redirectURI string
	expiresAt   time.Time
	listener    *Listener
	timer       *time.Timer
	cancel      context.CancelFunc
}

// Controller runs the OAuth authorization-code flow with PKCE. It owns at
// most one live attempt; starting a new login tears the old one down first.
type Controller struct {
	opts Options

	mu      sync.Mutex
	state   State
	current *attempt
}

// NewController creates a Controller.
func NewController(opts Options) *Controller {
	if opts.CallbackPort == 0 {
		opts.CallbackPort = DefaultCallbackPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultLoginTimeout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = OpenBrowser
	}
	return &Controller{opts: opts}
}

// Configured reports whether a provider is set.
func (c *Controller) Configured() bool {
	return c.opts.Provider != nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the live attempt, if any.
func (c *Controller) Pending() (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Pending{}, false
	}
	return Pending{
		UserID:      c.current.userID,
		RedirectURI: c.current.redirectURI,
		ExpiresAt:   c.current.expiresAt,
	}, true
}

// StartLogin begins a login for userID and returns the authorization URL.
// It does not wait for the user. The outcome is published as an event.
func (c *Controller) StartLogin(ctx context.Context, userID string) (string, error) {
	userID = api.NormalizeUserID(userID)
	if userID == "" {
		return "", api.InvalidIdentity("start_login", userID, "user id is empty")
	}
	if c.opts.Provider == nil {
		return "", api.NewError(api.CodeNotConfigured, "start_login", userID, errors.New("no OAuth client id configured"))
	}

	// Discovery is the only network step and runs before the lock and the
	// bind, so a stalled provider neither blocks State nor holds a port.
	discoverCtx, cancelDiscover := context.WithTimeout(ctx, discoveryTimeout)
	err := c.opts.Provider.Discover(discoverCtx)
	cancelDiscover()
	if err != nil {
		logging.Error("AuthFlow", err, "Login for user %s could not reach the authorization server", userID)
		return "", api.NewError(api.CodeExchangeFailed, "start_login", userID, err)
	}

	c.mu.Lock()

	// The previous listener is closed before the next bind.
	c.cancelLocked()

	pkce := oauth.GeneratePKCE()
	csrfState, err := oauth.GenerateState()
	if err != nil {
		c.state = StateFailed
		c.mu.Unlock()
		return "", err
	}

	// The listener answers callbacks with any other state itself, so the
	// controller only ever sees the attempt's own redirect.
	listener, err := Bind(c.opts.Listen, c.opts.CallbackPort, csrfState)
	if err != nil {
		c.state = StateFailed
		c.mu.Unlock()
		logging.Error("AuthFlow", err, "Login for user %s could not bind the loopback listener", userID)
		return "", err
	}

	authURL, err := c.opts.Provider.AuthCodeURL(ctx, csrfState, listener.RedirectURI(), pkce)
	if err != nil {
		listener.Close()
		c.state = StateFailed
		c.mu.Unlock()
		return "", err
	}

	exchangeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attempt{
		userID:      userID,
		pkce:        pkce,
		redirectURI: listener.RedirectURI(),
		expiresAt:   time.Now().Add(c.opts.Timeout),
		listener:    listener,
		cancel:      cancel,
	}
	a.timer = time.AfterFunc(c.opts.Timeout, func() { c.expire(a) })

	c.current = a
	c.state = StatePending
	c.mu.Unlock()

	go c.serve(exchangeCtx, a)

	logging.Info("AuthFlow", "Login started for user %s, waiting for callback on %s", userID, a.redirectURI)

	if err := c.opts.OpenBrowser(authURL); err != nil {
		logging.Warn("AuthFlow", "Could not open browser, the user must open the URL manually: %v", err)
	}
	return authURL, nil
}

// cancelLocked tears down the live attempt without emitting an event.
func (c *Controller) cancelLocked() {
	a := c.current
	if a == nil {
		return
	}
	a.timer.Stop()
	a.pkce = nil
	a.cancel()
	a.listener.Close()
	c.current = nil
	c.state = StateIdle
	logging.Debug("AuthFlow", "Superseded pending login for user %s", a.userID)
}

// Close cancels any pending login.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// serve waits for the attempt's single callback.
func (c *Controller) serve(ctx context.Context, a *attempt) {
	select {
	case cb := <-a.listener.Callbacks():
		err := c.handleCallback(ctx, a, cb.Params)
		cb.Reply(err)
		a.listener.Close()
	case <-a.listener.Done():
	}
}

// claim takes the PKCE session for a callback. It fails with MissingVerifier
// when the attempt was cancelled, superseded or expired.
func (c *Controller) claim(a *attempt) (*oauth.PKCEChallenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != a || a.pkce == nil {
		return nil, api.NewError(api.CodeMissingVerifier, "handle_callback", a.userID, errors.New("no live PKCE challenge"))
	}
	a.timer.Stop()
	pkce := a.pkce
	a.pkce = nil
	return pkce, nil
}

func (c *Controller) handleCallback(ctx context.Context, a *attempt, params CallbackParams) error {
	pkce, err := c.claim(a)
	if err != nil {
		logging.Warn("AuthFlow", "Rejected callback for user %s: %v", a.userID, err)
		return err
	}

	if params.IsError() {
		err := api.NewError(api.CodeExchangeFailed, "handle_callback", a.userID,
			fmt.Errorf("provider returned %s: %s", params.Error, params.ErrorDescription))
		c.fail(a, err)
		return err
	}
	if params.Code == "" {
		err := api.NewError(api.CodeExchangeFailed, "handle_callback", a.userID, errors.New("missing authorization code"))
		c.fail(a, err)
		return err
	}

	exCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := c.opts.Provider.Exchange(exCtx, params.Code, a.redirectURI, pkce)
	if err != nil {
		if !api.IsCode(err, api.CodeExchangeFailed) {
			err = api.NewError(api.CodeExchangeFailed, "exchange_code", a.userID, err)
		}
		c.fail(a, err)
		return err
	}

	claims, err := c.opts.Provider.Claims(exCtx, tok)
	if err != nil {
		err = api.NewError(api.CodeExchangeFailed, "id_token", a.userID, err)
		c.fail(a, err)
		return err
	}

	if !c.finish(a, StateSucceeded) {
		return api.NewError(api.CodeMissingVerifier, "handle_callback", a.userID, errors.New("login was superseded"))
	}

	if tok.RefreshToken != "" && c.opts.Vault != nil {
		if err := c.opts.Vault.Save(ctx, a.userID, tok.RefreshToken); err != nil {
			logging.Error("AuthFlow", err, "Failed to persist refresh token for user %s", a.userID)
		}
	} else if tok.RefreshToken == "" {
		logging.Warn("AuthFlow", "Provider issued no refresh token for user %s", a.userID)
	}

	logging.Info("AuthFlow", "Login succeeded for user %s", a.userID)
	c.publish(api.Event{
		Type:        api.EventAuthSucceeded,
		UserID:      a.userID,
		AccessToken: tok.AccessToken,
		Claims:      claims,
	})
	return nil
}

// finish moves a still-current attempt to a terminal state. It returns false
// when the attempt is no longer current, in which case nothing is emitted.
func (c *Controller) finish(a *attempt, state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != a {
		return false
	}
	a.timer.Stop()
	a.pkce = nil
	c.current = nil
	c.state = state
	return true
}

func (c *Controller) fail(a *attempt, err error) {
	if !c.finish(a, StateFailed) {
		return
	}
	logging.Error("AuthFlow", err, "Login failed for user %s", a.userID)
	c.publish(api.Event{
		Type:    api.EventAuthFailed,
		UserID:  a.userID,
		Message: err.Error(),
		Code:    api.CodeOf(err),
	})
}

// expire is the attempt's timer callback.
func (c *Controller) expire(a *attempt) {
	c.mu.Lock()
	if c.current != a || a.pkce == nil {
		c.mu.Unlock()
		return
	}
	a.pkce = nil
	a.cancel()
	c.current = nil
	c.state = StateTimedOut
	c.mu.Unlock()

	a.listener.Close()

	logging.Warn("AuthFlow", "Login for user %s timed out after %s", a.userID, c.opts.Timeout)
	c.publish(api.Event{
		Type:    api.EventAuthTimedOut,
		UserID:  a.userID,
		Message: "login timed out",
		Code:    api.CodeTimedOut,
	})
}

func (c *Controller) publish(e api.Event) {
	if c.opts.Events == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	c.opts.Events.Publish(e)
}
