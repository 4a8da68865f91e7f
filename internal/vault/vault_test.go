package vault

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/giantswarm/tandem/internal/api"
)

// toggleSealer wraps an AEADSealer with switchable availability.
type toggleSealer struct {
	*AEADSealer
	available atomic.Bool
}

func newToggleSealer(t *testing.T, available bool) *toggleSealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	inner, err := NewAEADSealerFromString(key)
	require.NoError(t, err)
	s := &toggleSealer{AEADSealer: inner}
	s.available.Store(available)
	return s
}

func (s *toggleSealer) Available() bool { return s.available.Load() }

// fakeRefresher records calls and returns a configurable token.
type fakeRefresher struct {
	mu       sync.Mutex
	calls    []string
	rotateTo string
	err      error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refreshToken)
	if f.err != nil {
		return nil, f.err
	}
	rt := refreshToken
	if f.rotateTo != "" {
		rt = f.rotateTo
	}
	return &oauth2.Token{
		AccessToken:  "access-for-" + refreshToken,
		RefreshToken: rt,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestVault_SaveUsesSealerWhenAvailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v := New(store, newToggleSealer(t, true), &fakeRefresher{})

	require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

	rec, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, ModePlatformSealed, rec.Mode)
	assert.NotContains(t, string(rec.RefreshTokenCiphertext), "refresh-1")
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestVault_SaveFallsBackWhenSealerUnavailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v := New(store, newToggleSealer(t, false), &fakeRefresher{})

	require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

	rec, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, ModeFallback, rec.Mode)
	assert.Equal(t, "refresh-1", string(rec.RefreshTokenCiphertext))

	st, err := v.Status("u1")
	require.NoError(t, err)
	assert.True(t, st.Present)
	assert.Equal(t, ModeFallback, st.Mode)
}

func TestVault_RoundTrip(t *testing.T) {
	ctx := context.Background()
	refresher := &fakeRefresher{}
	v := New(NewMemoryStore(), newToggleSealer(t, true), refresher)

	require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

	tok, ok := v.LoadAccessToken(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, "access-for-refresh-1", tok.AccessToken)
	assert.Equal(t, []string{"refresh-1"}, refresher.calls)

	// Cached until close to expiry.
	_, ok = v.LoadAccessToken(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, 1, refresher.callCount())
}

func TestVault_RotatedRefreshTokenIsResaved(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sealer := newToggleSealer(t, true)
	refresher := &fakeRefresher{rotateTo: "refresh-2"}
	v := New(store, sealer, refresher)

	require.NoError(t, v.Save(ctx, "u1", "refresh-1"))
	_, ok := v.LoadAccessToken(ctx, "u1")
	require.True(t, ok)

	rec, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, ModePlatformSealed, rec.Mode, "rotated token is saved with the same policy")
	plaintext, err := sealer.Open(rec.RefreshTokenCiphertext)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", string(plaintext))
}

func TestVault_LoadFailuresMeanNoToken(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		v := New(NewMemoryStore(), newToggleSealer(t, true), &fakeRefresher{})
		tok, ok := v.LoadAccessToken(ctx, "u1")
		assert.False(t, ok)
		assert.Nil(t, tok)
	})

	t.Run("decryption failure", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, New(store, newToggleSealer(t, true), nil).Save(ctx, "u1", "refresh-1"))

		refresher := &fakeRefresher{}
		rotatedKey := New(store, newToggleSealer(t, true), refresher)
		tok, ok := rotatedKey.LoadAccessToken(ctx, "u1")
		assert.False(t, ok)
		assert.Nil(t, tok)
		assert.Equal(t, 0, refresher.callCount())
	})

	t.Run("sealer no longer available", func(t *testing.T) {
		store := NewMemoryStore()
		sealer := newToggleSealer(t, true)
		refresher := &fakeRefresher{}
		v := New(store, sealer, refresher)
		require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

		sealer.available.Store(false)
		_, ok := v.LoadAccessToken(ctx, "u1")
		assert.False(t, ok)
		assert.Equal(t, 0, refresher.callCount())
	})

	t.Run("refresh rejected", func(t *testing.T) {
		refresher := &fakeRefresher{err: api.NewError(api.CodeExchangeFailed, "refresh_token", "", errors.New("invalid_grant"))}
		v := New(NewMemoryStore(), Unavailable{}, refresher)
		require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

		_, ok := v.LoadAccessToken(ctx, "u1")
		assert.False(t, ok)
	})

	t.Run("not configured", func(t *testing.T) {
		v := New(NewMemoryStore(), nil, nil)
		require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

		_, ok := v.LoadAccessToken(ctx, "u1")
		assert.False(t, ok)
	})
}

func TestVault_RecordsAreKeyedPerUser(t *testing.T) {
	ctx := context.Background()
	v := New(NewMemoryStore(), newToggleSealer(t, true), &fakeRefresher{})

	require.NoError(t, v.Save(ctx, "u1", "refresh-a"))
	require.NoError(t, v.Save(ctx, "u2", "refresh-b"))

	a, ok := v.LoadAccessToken(ctx, "u1")
	require.True(t, ok)
	b, ok := v.LoadAccessToken(ctx, "u2")
	require.True(t, ok)
	assert.Equal(t, "access-for-refresh-a", a.AccessToken)
	assert.Equal(t, "access-for-refresh-b", b.AccessToken)

	require.NoError(t, v.Delete(ctx, "u1"))
	_, ok = v.LoadAccessToken(ctx, "u1")
	assert.False(t, ok)
	_, ok = v.LoadAccessToken(ctx, "u2")
	assert.True(t, ok)
}

func TestVault_DeleteIsUnconditional(t *testing.T) {
	v := New(NewMemoryStore(), nil, nil)
	assert.NoError(t, v.Delete(context.Background(), "never-saved"))

	st, err := v.Status("never-saved")
	require.NoError(t, err)
	assert.False(t, st.Present)
}

func TestVault_SaveRejectsEmptyUser(t *testing.T) {
	v := New(NewMemoryStore(), nil, nil)
	err := v.Save(context.Background(), "  ", "refresh")
	assert.True(t, api.IsCode(err, api.CodeInvalidIdentity))
}

func TestVault_ConcurrentLoadsShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var calls atomic.Int32
	refresher := RefresherFunc(func(ctx context.Context, rt string) (*oauth2.Token, error) {
		calls.Add(1)
		<-release
		return &oauth2.Token{AccessToken: "at", RefreshToken: rt, Expiry: time.Now().Add(time.Hour)}, nil
	})
	v := New(NewMemoryStore(), nil, refresher)
	require.NoError(t, v.Save(ctx, "u1", "refresh-1"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := v.LoadAccessToken(ctx, "u1")
			assert.True(t, ok)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

// blockingRefresher parks every Refresh call until release is closed and
// then rotates the refresh token.
type blockingRefresher struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingRefresher() *blockingRefresher {
	return &blockingRefresher{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingRefresher) Refresh(ctx context.Context, rt string) (*oauth2.Token, error) {
	b.entered <- struct{}{}
	<-b.release
	return &oauth2.Token{AccessToken: "access-for-" + rt, RefreshToken: "rotated", Expiry: time.Now().Add(time.Hour)}, nil
}

func (b *blockingRefresher) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}
}

func TestVault_DeleteDuringRefreshSticks(t *testing.T) {
	ctx := context.Background()
	refresher := newBlockingRefresher()
	store := NewMemoryStore()
	v := New(store, nil, refresher)
	require.NoError(t, v.Save(ctx, "u1", "r1"))

	type result struct {
		tok *oauth2.Token
		ok  bool
	}
	done := make(chan result, 1)
	go func() {
		tok, ok := v.LoadAccessToken(ctx, "u1")
		done <- result{tok, ok}
	}()

	refresher.waitEntered(t)
	require.NoError(t, v.Delete(ctx, "u1"))
	close(refresher.release)

	res := <-done
	assert.False(t, res.ok, "a refresh that raced a delete must not hand out a token")
	assert.Nil(t, res.tok)

	st, err := v.Status("u1")
	require.NoError(t, err)
	assert.False(t, st.Present, "rotated token must not restore a deleted record")

	_, err = store.Get("u1")
	assert.ErrorIs(t, err, ErrNoRecord)

	// Nothing cached either; the next load finds no record.
	_, ok := v.LoadAccessToken(ctx, "u1")
	assert.False(t, ok)
}

func TestVault_SaveDuringRefreshWins(t *testing.T) {
	ctx := context.Background()
	refresher := newBlockingRefresher()
	v := New(NewMemoryStore(), nil, refresher)
	require.NoError(t, v.Save(ctx, "u1", "r1"))

	done := make(chan bool, 1)
	go func() {
		_, ok := v.LoadAccessToken(ctx, "u1")
		done <- ok
	}()

	refresher.waitEntered(t)
	require.NoError(t, v.Save(ctx, "u1", "from-new-login"))
	close(refresher.release)
	assert.False(t, <-done)

	got, _, err := v.readRefreshToken("u1")
	require.NoError(t, err)
	assert.Equal(t, "from-new-login", got)
}
