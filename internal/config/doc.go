// Package config loads tandem's configuration.
//
// Values are layered: built-in defaults, then the YAML file
// (~/.config/tandem/config.yaml unless --config-path says otherwise), then
// TANDEM_* environment variables, then command-line flags applied by the
// caller. A missing file is not an error.
//
// # Environment
//
//	TANDEM_DATA_DIR                  data directory (users, partitions, tokens)
//	TANDEM_IDENTITY_BACKEND          "yaml" or "sqlite"
//	TANDEM_OAUTH_CLIENT_ID           OAuth client id; empty disables sign-in
//	TANDEM_OAUTH_CLIENT_SECRET       client secret, empty for public clients
//	TANDEM_OAUTH_SCOPES              comma-separated scopes
//	TANDEM_OAUTH_DISCOVERY_URL       issuer URL used for discovery
//	TANDEM_OAUTH_CALLBACK_PORT       primary loopback port
//	TANDEM_OAUTH_LOGIN_TIMEOUT       e.g. "2m"
//	TANDEM_VAULT_SEALER              "keyring", "key" or "none"
//	TANDEM_VAULT_KEY                 base64 key for the "key" sealer
//	TANDEM_LOG_LEVEL, TANDEM_LOG_FORMAT
//
// A missing OAuth client id is not a configuration error. Sign-in reports
// NotConfigured when it is attempted.
package config
