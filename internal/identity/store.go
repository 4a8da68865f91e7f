package identity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giantswarm/tandem/internal/api"
)

// maxNameLength is the maximum display name length in runes.
const maxNameLength = 64

// Store is the persistence contract for users. Lookups by id return an
// api.Error with code UnknownUser when the user does not exist and
// InvalidIdentity when the id is empty.
type Store interface {
	api.UserLookup

	// List returns all users in creation order.
	List() ([]api.User, error)
	// Create adds a user with a fresh UUID.
	Create(name string) (*api.User, error)
	// Rename changes a user's display name.
	Rename(id, name string) (*api.User, error)
	// Update applies mutate to the stored user and persists the result.
	Update(id string, mutate func(*api.User)) (*api.User, error)
	// Remove deletes a user. If it was the active user, the active marker
	// is cleared.
	Remove(id string) error
	// Active returns the id of the last active user, or "".
	Active() (string, error)
	// SetActive records id as the last active user. An empty id clears it.
	SetActive(id string) error
}

// ValidateName checks a display name and returns it trimmed.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("user name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("user name cannot exceed %d characters", maxNameLength)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("user name cannot contain control characters")
		}
	}
	return name, nil
}

// normalizeID trims id and rejects the empty string.
func normalizeID(op, id string) (string, error) {
	id = api.NormalizeUserID(id)
	if id == "" {
		return "", api.InvalidIdentity(op, id, "user id is empty")
	}
	return id, nil
}

// Clock returns the current time. Stores use it for LastActive.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}
