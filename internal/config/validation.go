package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks the configuration. OAuth settings are only checked when a
// client id is present.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.DataDir) == "" {
		errs.Add("dataDir", "is required")
	}
	if err := ValidateOneOf("identityBackend", c.IdentityBackend, []string{IdentityBackendYAML, IdentityBackendSQLite}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if err := ValidateOneOf("vault.sealer", c.Vault.Sealer, []string{SealerKeyring, SealerKey, SealerNone}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if c.Vault.Sealer == SealerKey && c.Vault.Key == "" {
		errs.Add("vault.key", "is required when vault.sealer is \"key\"")
	}

	if c.OAuth.Configured() {
		if c.OAuth.DiscoveryURL == "" {
			errs.Add("oauth.discoveryUrl", "is required when a client id is set")
		}
		if c.OAuth.CallbackPort < 0 || c.OAuth.CallbackPort > 65535 {
			errs.Add("oauth.callbackPort", "must be between 0 and 65535", c.OAuth.CallbackPort)
		}
		if c.OAuth.LoginTimeout <= 0 {
			errs.Add("oauth.loginTimeout", "must be positive", c.OAuth.LoginTimeout)
		}
	}

	if c.Window.Width < 0 || c.Window.Height < 0 {
		errs.Add("window", "width and height must not be negative")
	}
	if c.Window.SidebarWidth < 0 {
		errs.Add("window.sidebarWidth", "must not be negative", c.Window.SidebarWidth)
	}

	if err := ValidateOneOf("logging.format", c.Logging.Format, []string{"text", "json"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
