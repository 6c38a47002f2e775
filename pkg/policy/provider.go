package policy

import (
	"context"
	"sync"
	"time"
)

// Version is one activation of a Policy. Versions are numbered sequentially
// from 1 and retained immutably; exactly one is active at a time.
type Version struct {
	Version   int       `json:"version"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	Policy    Policy    `json:"policy"`
}

// Provider supplies the active policy to an evaluation. Implementations must
// be safe for concurrent readers; an evaluation uses the snapshot it fetched
// at the start of its request and never observes a mid-flight change.
type Provider interface {
	ActivePolicy(ctx context.Context) (Policy, error)
}

// MemProvider is an in-memory Provider with append-only activation. It starts
// out serving Default() until the first Activate.
type MemProvider struct {
	mu       sync.RWMutex
	versions []Version
}

// NewMemProvider returns a provider with no activated versions.
func NewMemProvider() *MemProvider {
	return &MemProvider{}
}

// ActivePolicy returns the most recently activated policy, or Default() when
// none has been activated.
func (m *MemProvider) ActivePolicy(ctx context.Context) (Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.versions) - 1; i >= 0; i-- {
		if m.versions[i].Active {
			return m.versions[i].Policy, nil
		}
	}
	return Default(), nil
}

// Activate validates p, deactivates the current version, and appends p as the
// new active version. Returns the assigned version number.
func (m *MemProvider) Activate(ctx context.Context, p Policy) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		m.versions[i].Active = false
	}
	v := Version{
		Version:   len(m.versions) + 1,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		Policy:    p,
	}
	m.versions = append(m.versions, v)
	return v.Version, nil
}

// Versions returns a copy of the full activation history, oldest first.
func (m *MemProvider) Versions(ctx context.Context) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Version, len(m.versions))
	copy(out, m.versions)
	return out, nil
}
