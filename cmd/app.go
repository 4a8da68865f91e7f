package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/authflow"
	"github.com/giantswarm/tandem/internal/config"
	"github.com/giantswarm/tandem/internal/events"
	"github.com/giantswarm/tandem/internal/gate"
	"github.com/giantswarm/tandem/internal/identity"
	"github.com/giantswarm/tandem/internal/layout"
	"github.com/giantswarm/tandem/internal/session"
	"github.com/giantswarm/tandem/internal/shell"
	"github.com/giantswarm/tandem/internal/vault"
	"github.com/giantswarm/tandem/pkg/logging"
)

// tokensDir is the vault's directory under the data dir.
const tokensDir = "tokens"

// app is a fully wired tandem core.
type app struct {
	cfg     config.Config
	shell   *shell.Shell
	host    *layout.HeadlessHost
	policy  session.Policy
	watcher *identity.Watcher
	closers []func() error
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func initLogging(cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Init(level, logging.Format(cfg.Logging.Format), os.Stderr)
	return nil
}

// openStore opens the configured identity backend.
func openStore(cfg config.Config) (identity.Store, func() error, error) {
	switch cfg.IdentityBackend {
	case config.IdentityBackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := identity.OpenSQLite(filepath.Join(cfg.DataDir, identity.DatabaseFileName))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return identity.NewYAMLStore(cfg.DataDir), func() error { return nil }, nil
	}
}

// newSealer builds the configured token sealer.
func newSealer(cfg config.VaultConfig) (vault.Sealer, error) {
	switch cfg.Sealer {
	case config.SealerKey:
		return vault.NewAEADSealerFromString(cfg.Key)
	case config.SealerNone:
		return vault.Unavailable{}, nil
	default:
		return vault.NewKeyringSealer(cfg.KeyringService, ""), nil
	}
}

// newPolicy merges configured origins over the default policy.
func newPolicy(cfg config.OriginsConfig) session.Policy {
	p := session.DefaultPolicy()
	if len(cfg.Hosts) > 0 {
		p.Hosts = cfg.Hosts
	}
	if len(cfg.Suffixes) > 0 {
		p.Suffixes = cfg.Suffixes
	}
	if len(cfg.PermissionHosts) > 0 {
		p.PermissionHosts = cfg.PermissionHosts
	}
	if len(cfg.Permissions) > 0 {
		p.Permissions = cfg.Permissions
	}
	return p
}

// openApp wires every component. watch enables identity-file hot reload,
// which only long-running commands need.
func openApp(ctx context.Context, watch bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, policy: newPolicy(cfg.Origins)}
	if err := a.wire(ctx, watch); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, watch bool) error {
	cfg := a.cfg

	users, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeStore)

	sessions := session.NewRegistry(users, session.NewDirBackend(cfg.DataDir))

	a.host = layout.NewHeadlessHost()
	window := api.Bounds{Width: cfg.Window.Width, Height: cfg.Window.Height}
	manager := layout.NewManager(sessions, a.host, cfg.Window.SidebarWidth, window)

	records, err := vault.NewFileStore(filepath.Join(cfg.DataDir, tokensDir))
	if err != nil {
		return err
	}
	sealer, err := newSealer(cfg.Vault)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	a.closers = append(a.closers, func() error { bus.Close(); return nil })

	opts := authflow.Options{
		Events:       bus,
		CallbackPort: cfg.OAuth.CallbackPort,
		Timeout:      cfg.OAuth.LoginTimeout,
	}
	var tokens *vault.Vault
	if cfg.OAuth.Configured() {
		provider, err := authflow.NewOIDCProvider(authflow.ProviderConfig{
			ClientID:                cfg.OAuth.ClientID,
			ClientSecret:            cfg.OAuth.ClientSecret,
			Scopes:                  cfg.OAuth.Scopes,
			DiscoveryURL:            cfg.OAuth.DiscoveryURL,
			SkipIDTokenVerification: cfg.OAuth.SkipIDTokenVerification,
		})
		if err != nil {
			return err
		}
		opts.Provider = provider
		tokens = vault.New(records, sealer, provider)
	} else {
		tokens = vault.New(records, sealer, nil)
	}
	opts.Vault = tokens

	a.shell = shell.New(shell.Options{
		Users:    users,
		Sessions: sessions,
		Layout:   manager,
		Gate:     gate.New(users, sessions),
		Vault:    tokens,
		Auth:     authflow.NewController(opts),
		Bus:      bus,
	})
	if err := a.shell.Start(ctx); err != nil {
		a.shell.Close()
		return err
	}
	a.closers = append(a.closers, func() error { a.shell.Close(); return nil })

	if yamlStore, ok := users.(*identity.YAMLStore); ok && watch && cfg.WatchIdentityFile {
		a.watcher = identity.NewWatcher(identity.WatcherConfig{
			Path: yamlStore.Path(),
			OnChange: func() {
				if err := a.shell.Reload(context.WithoutCancel(ctx)); err != nil {
					logging.Error("Identity", err, "Failed to apply external identity changes")
				}
			},
		})
		if err := a.watcher.Start(); err != nil {
			logging.Warn("Identity", "Identity file watcher not started: %v", err)
			a.watcher = nil
		} else {
			a.closers = append(a.closers, a.watcher.Stop)
		}
	}

	return nil
}

// Close releases everything in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn("App", "Shutdown step failed: %v", err)
		}
	}
	a.closers = nil
}
