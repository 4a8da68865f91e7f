package authflow

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tandem/internal/api"
)

// occupiedPort returns a port that stays bound until the test ends.
func occupiedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func addrInUse() error {
	return &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func TestBind_PrimaryPort(t *testing.T) {
	port := freePort(t)
	l, err := Bind(nil, port, "")
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, port, l.Port())
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port)+"/callback", l.RedirectURI())
}

func TestBind_FallsBackOnceWhenPortInUse(t *testing.T) {
	busy := occupiedPort(t)

	l, err := Bind(nil, busy, "")
	require.NoError(t, err)
	defer l.Close()

	assert.NotEqual(t, busy, l.Port())
	assert.Contains(t, l.RedirectURI(), ":"+strconv.Itoa(l.Port())+"/callback")
}

func TestBind_Failures(t *testing.T) {
	t.Run("other errors do not fall back", func(t *testing.T) {
		var calls []string
		listen := func(network, addr string) (net.Listener, error) {
			calls = append(calls, addr)
			return nil, errors.New("permission denied")
		}

		_, err := Bind(listen, 42813, "")
		assert.True(t, api.IsCode(err, api.CodeBindFailed))
		assert.Equal(t, []string{"127.0.0.1:42813"}, calls)
	})

	t.Run("fallback failure is fatal", func(t *testing.T) {
		var calls []string
		listen := func(network, addr string) (net.Listener, error) {
			calls = append(calls, addr)
			return nil, addrInUse()
		}

		_, err := Bind(listen, 42813, "")
		assert.True(t, api.IsCode(err, api.CodeBindFailed))
		assert.Equal(t, []string{"127.0.0.1:42813", "127.0.0.1:0"}, calls)
	})
}

func TestListener_UnknownPathsAre404(t *testing.T) {
	l, err := Bind(nil, 0, "")
	require.NoError(t, err)
	defer l.Close()

	base := strings.TrimSuffix(l.RedirectURI(), CallbackPath)
	for _, path := range []string{"/", "/favicon.ico", "/callback/extra"} {
		status, _, _ := get(t, base+path)
		assert.Equal(t, http.StatusNotFound, status, path)
	}

	resp, err := http.Post(l.RedirectURI(), "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListener_SingleCallback(t *testing.T) {
	l, err := Bind(nil, 0, "s1")
	require.NoError(t, err)
	defer l.Close()

	received := make(chan CallbackParams, 2)
	go func() {
		for cb := range l.Callbacks() {
			received <- cb.Params
			cb.Reply(nil)
		}
	}()

	status, body, hdr := get(t, l.RedirectURI()+"?code=abc&state=s1")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "window.close()")
	assert.Contains(t, body, "Tandem")
	assert.Equal(t, "text/html; charset=utf-8", hdr.Get("Content-Type"))
	assert.Equal(t, "no-store", hdr.Get("Cache-Control"))

	params := <-received
	assert.Equal(t, "abc", params.Code)
	assert.Equal(t, "s1", params.State)

	status, _, _ = get(t, l.RedirectURI()+"?code=again&state=s1")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, received, 0)
}

func TestListener_WrongStateDoesNotConsumeCallback(t *testing.T) {
	l, err := Bind(nil, 0, "expected")
	require.NoError(t, err)
	defer l.Close()

	status, _, _ := get(t, l.RedirectURI()+"?code=abc&state=stale")
	assert.Equal(t, http.StatusBadRequest, status)

	go func() {
		cb := <-l.Callbacks()
		cb.Reply(nil)
	}()
	status, _, _ = get(t, l.RedirectURI()+"?code=abc&state=expected")
	assert.Equal(t, http.StatusOK, status)
}

func TestListener_FailureReply(t *testing.T) {
	l, err := Bind(nil, 0, "")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		cb := <-l.Callbacks()
		cb.Reply(api.NewError(api.CodeExchangeFailed, "exchange_code", "u1", errors.New("invalid_grant: secret detail")))
	}()

	status, body, hdr := get(t, l.RedirectURI()+"?code=abc")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "text/plain; charset=utf-8", hdr.Get("Content-Type"))
	assert.Contains(t, body, "ExchangeFailed")
	assert.NotContains(t, body, "secret detail")
}

func TestListener_CloseReleasesPort(t *testing.T) {
	l, err := Bind(nil, 0, "")
	require.NoError(t, err)
	port := l.Port()

	l.Close()
	l.Close()

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed")
	}

	again, err := Bind(nil, port, "")
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, port, again.Port())
}
