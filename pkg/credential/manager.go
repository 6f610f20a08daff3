package credential

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc exchanges the current bundle for a fresh one. Implemented by
// the API client; injected here to keep this package transport-free.
type RefreshFunc func(ctx context.Context, current Credential) (Credential, error)

// Manager owns the live credential and serializes refreshes. Concurrent
// callers that observe the same expired generation collapse into a single
// refresh call; late arrivals see the bumped generation and return
// immediately.
type Manager struct {
	mu      sync.RWMutex
	cred    *Credential
	gen     uint64
	refresh RefreshFunc
	sf      singleflight.Group
}

// NewManager wraps cred (nil means anonymous). refresh may be nil for
// read-only use.
func NewManager(cred *Credential, refresh RefreshFunc) *Manager {
	return &Manager{cred: cred, refresh: refresh}
}

// Anonymous reports whether no credential is loaded.
func (m *Manager) Anonymous() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred == nil
}

// Current returns a copy of the live bundle, or nil when anonymous.
func (m *Manager) Current() *Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return nil
	}
	c := *m.cred
	return &c
}

// CookieHeader renders the live bundle as a Cookie header value.
func (m *Manager) CookieHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.CookieHeader()
}

// Generation returns the current credential generation. Bumped on every
// successful refresh.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// Refresh replaces the live bundle via the refresh endpoint. Safe to call
// from many goroutines: all callers racing on the same generation share
// one underlying call. Fails fast when anonymous or when ac_time_value is
// missing.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	if m.cred == nil || m.refresh == nil {
		m.mu.RUnlock()
		return ErrRefreshUnavailable
	}
	if !m.cred.CanRefresh() {
		m.mu.RUnlock()
		return ErrRefreshUnavailable
	}
	gen := m.gen
	current := *m.cred
	m.mu.RUnlock()

	_, err, _ := m.sf.Do(fmt.Sprintf("refresh-%d", gen), func() (interface{}, error) {
		m.mu.RLock()
		stale := m.gen != gen
		m.mu.RUnlock()
		if stale {
			// Another caller already refreshed this generation.
			return nil, nil
		}

		fresh, err := m.refresh(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("credential refresh failed: %w", err)
		}

		m.mu.Lock()
		*m.cred = fresh
		m.gen++
		m.mu.Unlock()
		return nil, nil
	})
	return err
}
