package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	IdentityBackendYAML   = "yaml"
	IdentityBackendSQLite = "sqlite"

	SealerKeyring = "keyring"
	SealerKey     = "key"
	SealerNone    = "none"

	// DefaultDiscoveryURL is Google's OpenID Connect issuer.
	DefaultDiscoveryURL = "https://accounts.google.com"

	// DefaultCallbackPort is the primary loopback port. It must match the
	// redirect URI registered with the provider.
	DefaultCallbackPort = 42813

	DefaultLoginTimeout = 2 * time.Minute

	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 800
	DefaultSidebarWidth = 72

	DefaultKeyringService = "tandem"
)

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"openid", "email", "profile"}

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultDataDir returns ~/.local/share/tandem, or a directory under the
// temp dir when the home directory is unknown.
func DefaultDataDir() string {
	home, err := osUserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tandem")
	}
	return filepath.Join(home, ".local", "share", "tandem")
}

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		DataDir:           DefaultDataDir(),
		IdentityBackend:   IdentityBackendYAML,
		WatchIdentityFile: true,
		OAuth: OAuthConfig{
			Scopes:       append([]string(nil), DefaultScopes...),
			DiscoveryURL: DefaultDiscoveryURL,
			CallbackPort: DefaultCallbackPort,
			LoginTimeout: DefaultLoginTimeout,
		},
		Vault: VaultConfig{
			Sealer:         SealerKeyring,
			KeyringService: DefaultKeyringService,
		},
		Window: WindowConfig{
			Width:        DefaultWindowWidth,
			Height:       DefaultWindowHeight,
			SidebarWidth: DefaultSidebarWidth,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
