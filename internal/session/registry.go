package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
)

// partitionPrefix is prepended to a user id to form its partition key.
const partitionPrefix = "user_"

// BrowsingContext is one user's isolated cookie and storage scope.
type BrowsingContext struct {
	UserID    string    `json:"userId"`
	Partition string    `json:"partition"`
	Handle    string    `json:"handle"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backend provides the storage behind a partition. The embedding browser
// engine keeps cookies and local storage at the returned location.
type Backend interface {
	// Open prepares the partition and returns where its data lives.
	Open(ctx context.Context, partition string) (string, error)
	// Wipe deletes everything stored in the partition.
	Wipe(ctx context.Context, partition string) error
}

// ValidateUserID trims id and rejects values that cannot safely name a
// partition.
func ValidateUserID(op, id string) (string, error) {
	id = api.NormalizeUserID(id)
	if id == "" {
		return "", api.InvalidIdentity(op, id, "user id is empty")
	}
	if id == "." || id == ".." {
		return "", api.InvalidIdentity(op, id, "user id is a relative path element")
	}
	for _, r := range id {
		if r == '/' || r == '\\' || r == ':' || unicode.IsControl(r) {
			return "", api.InvalidIdentity(op, id, fmt.Sprintf("user id contains invalid character %q", r))
		}
	}
	return id, nil
}

// PartitionKey derives the partition key for userID.
func PartitionKey(userID string) (string, error) {
	id, err := ValidateUserID("partition_key", userID)
	if err != nil {
		return "", err
	}
	return partitionPrefix + id, nil
}

// Registry owns the browsing contexts.
type Registry struct {
	users   api.UserLookup
	backend Backend

	mu       sync.RWMutex
	byUser   map[string]*BrowsingContext
	byHandle map[string]string
}

// NewRegistry creates a Registry that validates users against users and
// stores partitions in backend.
func NewRegistry(users api.UserLookup, backend Backend) *Registry {
	return &Registry{
		users:    users,
		backend:  backend,
		byUser:   make(map[string]*BrowsingContext),
		byHandle: make(map[string]string),
	}
}

// ResolveContext returns the user's browsing context, creating it on the
// first call. Repeated calls return the same context.
func (r *Registry) ResolveContext(ctx context.Context, userID string) (*BrowsingContext, error) {
	id, err := ValidateUserID("resolve_context", userID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	bc, ok := r.byUser[id]
	r.mu.RUnlock()
	if ok {
		return bc, nil
	}

	if _, err := r.users.GetUser(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if bc, ok := r.byUser[id]; ok {
		return bc, nil
	}

	partition := partitionPrefix + id
	location, err := r.backend.Open(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", partition, err)
	}

	bc = &BrowsingContext{
		UserID:    id,
		Partition: partition,
		Handle:    uuid.NewString(),
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
	r.byUser[id] = bc
	r.byHandle[bc.Handle] = id

	logging.Info("Session", "Created browsing context for user %s (partition %s)", id, partition)
	return bc, nil
}

// Lookup returns an existing context without creating one.
func (r *Registry) Lookup(userID string) (*BrowsingContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bc, ok := r.byUser[api.NormalizeUserID(userID)]
	return bc, ok
}

// ContextOwner returns the user that owns the context with the given handle.
func (r *Registry) ContextOwner(handle string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHandle[handle]
	return id, ok
}

// Contexts returns a snapshot of all live contexts ordered by user id.
func (r *Registry) Contexts() []BrowsingContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BrowsingContext, 0, len(r.byUser))
	for _, bc := range r.byUser {
		out = append(out, *bc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ClearData wipes the user's partition and destroys the live context. The
// next ResolveContext creates a fresh one. Authorization is the caller's
// responsibility.
func (r *Registry) ClearData(ctx context.Context, userID string) error {
	return r.drop(ctx, "clear_data", userID)
}

// Release destroys the user's context and partition when the user is
// removed.
func (r *Registry) Release(ctx context.Context, userID string) error {
	return r.drop(ctx, "release_context", userID)
}

func (r *Registry) drop(ctx context.Context, op, userID string) error {
	id, err := ValidateUserID(op, userID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	partition := partitionPrefix + id
	// The partition may hold data from an earlier run even without a live
	// context, so it is wiped unconditionally.
	if err := r.backend.Wipe(ctx, partition); err != nil {
		return fmt.Errorf("wipe partition %s: %w", partition, err)
	}

	if bc, ok := r.byUser[id]; ok {
		delete(r.byHandle, bc.Handle)
		delete(r.byUser, id)
	}

	logging.Info("Session", "Wiped partition %s for user %s", partition, id)
	return nil
}
