package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
)

// accessTokenExpiryBuffer is subtracted from an access token's expiry when
// deciding whether a cached token can be handed out again.
const accessTokenExpiryBuffer = 60 * time.Second

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return f(ctx, refreshToken)
}

// ConfigRefresher refreshes through an oauth2.Config's token endpoint.
type ConfigRefresher struct {
	Config *oauth2.Config
}

// Refresh implements Refresher. x/oauth2 keeps the old refresh token when the
// provider does not rotate it, so the returned token always carries one.
func (r ConfigRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, api.NewError(api.CodeExchangeFailed, "refresh_token", "", err)
	}
	return tok, nil
}

// Status describes the stored record for a user without revealing it.
type Status struct {
	Present   bool      `json:"present"`
	Mode      Mode      `json:"mode,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Vault is the per-user token vault.
type Vault struct {
	store     RecordStore
	sealer    Sealer
	refresher Refresher
	now       func() time.Time

	group singleflight.Group

	// mu guards cache and generation and is held across record writes, so
	// a Delete can never be followed by a write from an older refresh.
	mu    sync.Mutex
	cache map[string]*oauth2.Token

	// generation counts record writes and deletes per user.
	generation map[string]uint64
}

// errSuperseded is returned by a refresh whose record was replaced or
// deleted while the provider call was in flight.
var errSuperseded = errors.New("token record changed during refresh")

// New creates a Vault. A nil sealer behaves as Unavailable. A nil refresher
// means no access token can ever be issued (OAuth is not configured).
func New(store RecordStore, sealer Sealer, refresher Refresher) *Vault {
	if sealer == nil {
		sealer = Unavailable{}
	}
	return &Vault{
		store:      store,
		sealer:     sealer,
		refresher:  refresher,
		now:        time.Now,
		cache:      make(map[string]*oauth2.Token),
		generation: make(map[string]uint64),
	}
}

// Save stores refreshToken for userID, sealed when the sealer is available.
// SECURITY: Token values are never logged.
func (v *Vault) Save(ctx context.Context, userID, refreshToken string) error {
	userID = api.NormalizeUserID(userID)
	if userID == "" {
		return api.InvalidIdentity("save_token", userID, "user id is empty")
	}
	_, err := v.put(userID, refreshToken, nil)
	return err
}

// put seals and writes a record. With expect set, the write only happens
// when the user's generation still equals *expect. It returns the new
// generation.
func (v *Vault) put(userID, refreshToken string, expect *uint64) (uint64, error) {
	if refreshToken == "" {
		return 0, fmt.Errorf("refresh token is empty")
	}

	rec := &Record{Mode: ModeFallback, UpdatedAt: v.now().UTC()}
	if v.sealer.Available() {
		sealed, err := v.sealer.Seal([]byte(refreshToken))
		if err != nil {
			logging.Warn("Vault", "Sealing failed for user %s, using fallback storage: %v", userID, err)
			rec.RefreshTokenCiphertext = []byte(refreshToken)
		} else {
			rec.RefreshTokenCiphertext = sealed
			rec.Mode = ModePlatformSealed
		}
	} else {
		rec.RefreshTokenCiphertext = []byte(refreshToken)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if expect != nil && v.generation[userID] != *expect {
		return 0, errSuperseded
	}
	if err := v.store.Put(userID, rec); err != nil {
		logging.Audit("token_store_failed", "OAuth refresh token storage failed",
			"user_id", userID, "error", err.Error())
		return 0, fmt.Errorf("failed to persist token: %w", err)
	}
	v.generation[userID]++
	delete(v.cache, userID)

	logging.Audit("token_stored", "OAuth refresh token stored",
		"user_id", userID, "mode", string(rec.Mode))
	return v.generation[userID], nil
}

// LoadAccessToken returns a valid access token for userID, refreshing it if
// necessary. Any failure yields (nil, false).
func (v *Vault) LoadAccessToken(ctx context.Context, userID string) (*oauth2.Token, bool) {
	userID = api.NormalizeUserID(userID)
	if userID == "" {
		return nil, false
	}

	if tok := v.cached(userID); tok != nil {
		return tok, true
	}

	res, err, _ := v.group.Do(userID, func() (any, error) {
		return v.refresh(ctx, userID)
	})
	if err != nil {
		logging.Debug("Vault", "No access token for user %s: %v", userID, err)
		return nil, false
	}
	return res.(*oauth2.Token), true
}

func (v *Vault) cached(userID string) *oauth2.Token {
	v.mu.Lock()
	defer v.mu.Unlock()

	tok, ok := v.cache[userID]
	if !ok {
		return nil
	}
	if !tok.Expiry.IsZero() && !v.now().Add(accessTokenExpiryBuffer).Before(tok.Expiry) {
		delete(v.cache, userID)
		return nil
	}
	return tok
}

// refresh reads the record, opens it and exchanges the refresh token. A
// Save or Delete for the same user during the exchange voids the result.
func (v *Vault) refresh(ctx context.Context, userID string) (*oauth2.Token, error) {
	if v.refresher == nil {
		return nil, api.NewError(api.CodeNotConfigured, "load_access_token", userID, nil)
	}

	v.mu.Lock()
	gen := v.generation[userID]
	v.mu.Unlock()

	refreshToken, rec, err := v.readRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	tok, err := v.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, api.NewError(api.CodeExchangeFailed, "load_access_token", userID, errors.New("provider returned no access token"))
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		next, err := v.put(userID, tok.RefreshToken, &gen)
		switch {
		case errors.Is(err, errSuperseded):
			logging.Info("Vault", "Discarded rotated refresh token for user %s, record changed during refresh", userID)
			return nil, err
		case err != nil:
			logging.Error("Vault", err, "Failed to persist rotated refresh token for user %s", userID)
		default:
			gen = next
			logging.Info("Vault", "Refresh token rotated for user %s (previous mode %s)", userID, rec.Mode)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generation[userID] != gen {
		return nil, errSuperseded
	}
	v.cache[userID] = tok
	return tok, nil
}

func (v *Vault) readRefreshToken(userID string) (string, *Record, error) {
	rec, err := v.store.Get(userID)
	if err != nil {
		return "", nil, err
	}

	switch rec.Mode {
	case ModePlatformSealed:
		if !v.sealer.Available() {
			return "", nil, ErrSealerUnavailable
		}
		plaintext, err := v.sealer.Open(rec.RefreshTokenCiphertext)
		if err != nil {
			logging.Warn("Vault", "Stored token for user %s could not be decrypted, treating as absent", userID)
			return "", nil, err
		}
		return string(plaintext), rec, nil
	case ModeFallback:
		return string(rec.RefreshTokenCiphertext), rec, nil
	default:
		return "", nil, fmt.Errorf("unknown token record mode %q", rec.Mode)
	}
}

// Delete removes the record for userID. A missing record is not an error.
// A refresh in flight for userID will neither restore the record nor
// cache its access token.
func (v *Vault) Delete(ctx context.Context, userID string) error {
	userID = api.NormalizeUserID(userID)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.generation[userID]++
	delete(v.cache, userID)

	if err := v.store.Delete(userID); err != nil {
		logging.Audit("token_delete_failed", "OAuth refresh token deletion failed",
			"user_id", userID, "error", err.Error())
		return err
	}

	logging.Audit("token_deleted", "OAuth refresh token deleted", "user_id", userID)
	return nil
}

// Status reports whether a record exists for userID and how it is protected.
func (v *Vault) Status(userID string) (Status, error) {
	rec, err := v.store.Get(api.NormalizeUserID(userID))
	if errors.Is(err, ErrNoRecord) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Present: true, Mode: rec.Mode, UpdatedAt: rec.UpdatedAt}, nil
}
