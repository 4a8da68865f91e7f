package config

import "time"

// Config is the top-level configuration.
type Config struct {
	// DataDir holds users.yaml (or users.db), partitions/ and tokens/.
	DataDir string `yaml:"dataDir,omitempty" envconfig:"DATA_DIR"`
	// IdentityBackend selects the identity store.
	IdentityBackend string `yaml:"identityBackend,omitempty" envconfig:"IDENTITY_BACKEND"`
	// WatchIdentityFile reloads when another process edits the users file.
	WatchIdentityFile bool `yaml:"watchIdentityFile" envconfig:"WATCH_IDENTITY_FILE"`

	OAuth   OAuthConfig   `yaml:"oauth" envconfig:"OAUTH"`
	Vault   VaultConfig   `yaml:"vault" envconfig:"VAULT"`
	Window  WindowConfig  `yaml:"window" envconfig:"WINDOW"`
	Origins OriginsConfig `yaml:"origins" envconfig:"ORIGINS"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOG"`
}

// OAuthConfig configures the sign-in provider.
type OAuthConfig struct {
	ClientID     string        `yaml:"clientId,omitempty" envconfig:"CLIENT_ID"`
	ClientSecret string        `yaml:"clientSecret,omitempty" envconfig:"CLIENT_SECRET"`
	Scopes       []string      `yaml:"scopes,omitempty" envconfig:"SCOPES"`
	DiscoveryURL string        `yaml:"discoveryUrl,omitempty" envconfig:"DISCOVERY_URL"`
	CallbackPort int           `yaml:"callbackPort,omitempty" envconfig:"CALLBACK_PORT"`
	LoginTimeout time.Duration `yaml:"loginTimeout,omitempty" envconfig:"LOGIN_TIMEOUT"`
	// SkipIDTokenVerification reads ID token claims without checking the
	// signature. Only for providers without a JWKS endpoint.
	SkipIDTokenVerification bool `yaml:"skipIdTokenVerification,omitempty" envconfig:"SKIP_ID_TOKEN_VERIFICATION"`
}

// Configured reports whether sign-in can be attempted.
func (c OAuthConfig) Configured() bool {
	return c.ClientID != ""
}

// VaultConfig selects how refresh tokens are sealed at rest.
type VaultConfig struct {
	Sealer         string `yaml:"sealer,omitempty" envconfig:"SEALER"`
	Key            string `yaml:"key,omitempty" envconfig:"KEY"`
	KeyringService string `yaml:"keyringService,omitempty" envconfig:"KEYRING_SERVICE"`
}

// WindowConfig is the initial window geometry.
type WindowConfig struct {
	Width        int `yaml:"width,omitempty" envconfig:"WIDTH"`
	Height       int `yaml:"height,omitempty" envconfig:"HEIGHT"`
	SidebarWidth int `yaml:"sidebarWidth,omitempty" envconfig:"SIDEBAR_WIDTH"`
}

// OriginsConfig overrides the browsing-context origin policy. Empty lists
// keep the built-in policy.
type OriginsConfig struct {
	Hosts           []string `yaml:"hosts,omitempty" envconfig:"HOSTS"`
	Suffixes        []string `yaml:"suffixes,omitempty" envconfig:"SUFFIXES"`
	PermissionHosts []string `yaml:"permissionHosts,omitempty" envconfig:"PERMISSION_HOSTS"`
	Permissions     []string `yaml:"permissions,omitempty" envconfig:"PERMISSIONS"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" envconfig:"LEVEL"`
	Format string `yaml:"format,omitempty" envconfig:"FORMAT"`
}
