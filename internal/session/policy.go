package session

import (
	"net/url"
	"slices"
	"strings"
)

// Policy decides which origins a browsing context may load and which
// permission requests it may grant. It is applied identically to every
// partition.
type Policy struct {
	// Hosts are allowed by exact hostname.
	Hosts []string `yaml:"hosts" json:"hosts"`
	// Suffixes allow any subdomain, e.g. ".google.com".
	Suffixes []string `yaml:"suffixes" json:"suffixes"`
	// PermissionHosts may request permissions at all.
	PermissionHosts []string `yaml:"permissionHosts" json:"permissionHosts"`
	// Permissions lists the grantable permission names.
	Permissions []string `yaml:"permissions" json:"permissions"`
}

// DefaultPolicy allows the web application, Google sign-in and the Google
// static content hosts it depends on.
func DefaultPolicy() Policy {
	return Policy{
		Hosts:    []string{"gemini.google.com", "accounts.google.com"},
		Suffixes: []string{".google.com", ".gstatic.com", ".googleapis.com", ".googleusercontent.com", ".youtube.com"},
		PermissionHosts: []string{
			"gemini.google.com",
			"accounts.google.com",
		},
		Permissions: []string{"notifications", "media", "fullscreen"},
	}
}

// hostOf returns the lowercased hostname of an https URL, or "".
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// AllowOrigin reports whether a context may navigate to or load from raw.
// Only https is ever allowed.
func (p Policy) AllowOrigin(raw string) bool {
	host := hostOf(raw)
	if host == "" {
		return false
	}
	if slices.Contains(p.Hosts, host) {
		return true
	}
	for _, suffix := range p.Suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// AllowPermission reports whether a permission request from origin may be
// granted.
func (p Policy) AllowPermission(origin, permission string) bool {
	host := hostOf(origin)
	if host == "" || !slices.Contains(p.PermissionHosts, host) {
		return false
	}
	return slices.Contains(p.Permissions, permission)
}
