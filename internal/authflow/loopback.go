package authflow

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	texttemplate "text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
)

const (
	// DefaultCallbackPort is the well-known loopback port. It must be
	// registered as an allowed redirect URI with the OAuth client.
	DefaultCallbackPort = 42813

	// CallbackPath is the only route served by the loopback listener.
	CallbackPath = "/callback"

	loopbackHost = "127.0.0.1"

	shutdownTimeout = 2 * time.Second
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_failure.txt
var callbackFailureText string

var (
	successTmpl = template.Must(template.New("success").Funcs(sprig.FuncMap()).Parse(callbackSuccessHTML))
	failureTmpl = texttemplate.Must(texttemplate.New("failure").Funcs(sprig.TxtFuncMap()).Parse(callbackFailureText))
)

// appName is shown on the callback pages.
const appName = "tandem"

// errAttemptInactive is reported to a browser whose callback arrived after
// the login attempt was torn down.
var errAttemptInactive = errors.New("this sign-in attempt is no longer active")

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider returned an error.
func (p CallbackParams) IsError() bool {
	return p.Error != ""
}

// Callback is delivered to the controller exactly once per listener. The
// controller answers on Reply (nil for success); the HTTP handler blocks
// until then so the browser sees the real outcome.
type Callback struct {
	Params CallbackParams
	reply  chan error
}

// Reply sends the outcome to the waiting HTTP handler. Only the first call
// has an effect.
func (c *Callback) Reply(err error) {
	select {
	case c.reply <- err:
	default:
	}
}

// ListenFunc opens a network listener. net.Listen in production.
type ListenFunc func(network, address string) (net.Listener, error)

// Listener is a short-lived loopback HTTP server that accepts a single
// OAuth callback.
type Listener struct {
	listener      net.Listener
	server        *http.Server
	port          int
	expectedState string

	callbacks chan *Callback
	delivered sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// Bind starts a listener on 127.0.0.1:primaryPort. If and only if that port
// is already in use it retries once on an OS-assigned port. Every other
// failure, including a failed fallback, is a BindFailed error.
//
// When expectedState is set, callbacks carrying a different state are
// answered with 400 and do not use up the listener's single callback.
func Bind(listen ListenFunc, primaryPort int, expectedState string) (*Listener, error) {
	if listen == nil {
		listen = net.Listen
	}

	addr := net.JoinHostPort(loopbackHost, strconv.Itoa(primaryPort))
	ln, err := listen("tcp", addr)
	if err != nil && isAddrInUse(err) {
		logging.Info("Loopback", "Port %d is in use, falling back to an ephemeral port", primaryPort)
		addr = net.JoinHostPort(loopbackHost, "0")
		ln, err = listen("tcp", addr)
	}
	if err != nil {
		return nil, api.NewError(api.CodeBindFailed, "bind_loopback", addr, err)
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return nil, api.NewError(api.CodeBindFailed, "bind_loopback", addr, fmt.Errorf("unexpected address type %T", ln.Addr()))
	}

	l := &Listener{
		listener:      ln,
		port:          tcpAddr.Port,
		expectedState: expectedState,
		callbacks:     make(chan *Callback, 1),
		done:          make(chan struct{}),
	}

	router := chi.NewRouter()
	router.Get(CallbackPath, l.handleCallback)
	router.NotFound(http.NotFound)
	router.MethodNotAllowed(http.NotFound)

	l.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Debug("Loopback", "Listener on port %d stopped: %v", l.port, err)
		}
	}()

	logging.Debug("Loopback", "Listening for OAuth callback on %s", l.RedirectURI())
	return l, nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.port
}

// RedirectURI returns the redirect URI matching the bound port.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d%s", loopbackHost, l.port, CallbackPath)
}

// Callbacks yields the single callback this listener will ever deliver.
func (l *Listener) Callbacks() <-chan *Callback {
	return l.callbacks
}

// Done is closed when the listener is closed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops accepting connections and waits briefly for in-flight
// responses. When Close returns the port is released. Safe to call more
// than once.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.listener.Close()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = l.server.Shutdown(ctx)
		logging.Debug("Loopback", "Closed listener on port %d", l.port)
	})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	query := r.URL.Query()
	if l.expectedState != "" && query.Get("state") != l.expectedState {
		logging.Warn("Loopback", "Ignoring callback with unexpected state on port %d", l.port)
		http.Error(w, "Unknown or expired sign-in attempt", http.StatusBadRequest)
		return
	}

	first := false
	l.delivered.Do(func() { first = true })
	if !first {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	cb := &Callback{
		Params: CallbackParams{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		},
		reply: make(chan error, 1),
	}

	select {
	case l.callbacks <- cb:
	case <-l.done:
		writeFailure(w, errAttemptInactive)
		return
	}

	var outcome error
	select {
	case outcome = <-cb.reply:
	case <-l.done:
		// The controller replies before closing; prefer its answer.
		select {
		case outcome = <-cb.reply:
		default:
			outcome = errAttemptInactive
		}
	case <-r.Context().Done():
		return
	}

	if outcome != nil {
		writeFailure(w, outcome)
		return
	}
	writeSuccess(w)
}

func writeSuccess(w http.ResponseWriter) {
	var buf bytes.Buffer
	if err := successTmpl.Execute(&buf, map[string]string{"AppName": appName}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// writeFailure writes a generic 500 text page. Only the error code is shown,
// never provider responses or token material.
func writeFailure(w http.ResponseWriter, cause error) {
	msg := cause.Error()
	if code := api.CodeOf(cause); code != "" {
		msg = string(code)
	}

	var buf bytes.Buffer
	if err := failureTmpl.Execute(&buf, map[string]string{"AppName": appName, "Message": msg}); err != nil {
		buf.Reset()
		buf.WriteString("Sign-in failed\n")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(buf.Bytes())
}
