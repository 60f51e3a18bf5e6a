package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local development and tests.
// It follows the same semantics as Repository, including the atomic
// ceiling check in ActivateDevice.
type MemoryStore struct {
	mu          sync.Mutex
	licenses    map[string]*License
	activations map[string]*DeviceActivation
	wallets     map[string]*Wallet
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses:    make(map[string]*License),
		activations: make(map[string]*DeviceActivation),
		wallets:     make(map[string]*Wallet),
	}
}

// HealthCheck always succeeds
func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// PutLicense seeds or replaces a license
func (m *MemoryStore) PutLicense(l *License) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if err := l.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.licenses[l.ID] = &cp
	return nil
}

// PutWallet seeds or replaces a wallet
func (m *MemoryStore) PutWallet(w *Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	m.wallets[w.UserID] = &cp
}

func copyLicense(l *License) *License {
	cp := *l
	return &cp
}

func copyActivation(a *DeviceActivation) *DeviceActivation {
	cp := *a
	return &cp
}

// GetLicenseByID retrieves a license by ID
func (m *MemoryStore) GetLicenseByID(ctx context.Context, licenseID string) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[licenseID]
	if !ok {
		return nil, nil
	}
	return copyLicense(l), nil
}

// GetLicenseByUserID returns the user's current license, preferring entitled ones
func (m *MemoryStore) GetLicenseByUserID(ctx context.Context, userID string) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *License
	for _, l := range m.licenses {
		if l.UserID != userID {
			continue
		}
		switch {
		case best == nil:
			best = l
		case l.Entitled() && !best.Entitled():
			best = l
		case l.Entitled() == best.Entitled() && l.UpdatedAt.After(best.UpdatedAt):
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyLicense(best), nil
}

// IncrementUsage adds n to the usage counter and recomputes usage_limit_reached
func (m *MemoryStore) IncrementUsage(ctx context.Context, licenseID string, n int64) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.licenses[licenseID]
	if !ok {
		return nil, ErrNotFound
	}
	l.UsageCount += n
	l.UsageLimitReached = l.UsageLimit > 0 && l.UsageCount >= l.UsageLimit
	l.UpdatedAt = time.Now().UTC()
	return copyLicense(l), nil
}

func (m *MemoryStore) findActivation(licenseID, deviceID string) *DeviceActivation {
	for _, a := range m.activations {
		if a.LicenseID == licenseID && a.DeviceID == deviceID {
			return a
		}
	}
	return nil
}

// ActivateDevice checks the license and ceiling and upserts under one lock
func (m *MemoryStore) ActivateDevice(ctx context.Context, p ActivateParams) (*DeviceActivation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.licenses[p.LicenseID]
	if !ok {
		return nil, ErrNotFound
	}
	if !l.Entitled() {
		return nil, ErrLicenseInactive
	}

	others := 0
	for _, a := range m.activations {
		if a.LicenseID == p.LicenseID && a.IsActive && a.DeviceID != p.DeviceID {
			others++
		}
	}
	if others >= l.DeviceCeiling() {
		return nil, ErrDeviceLimitExceeded
	}

	jti := p.TokenID
	exp := p.TokenExpiresAt

	a := m.findActivation(p.LicenseID, p.DeviceID)
	if a == nil {
		a = &DeviceActivation{
			ID:          uuid.New().String(),
			LicenseID:   p.LicenseID,
			DeviceID:    p.DeviceID,
			ActivatedAt: p.At,
		}
		m.activations[a.ID] = a
	} else if !a.IsActive {
		a.ActivatedAt = p.At
	}

	if p.DeviceName != "" {
		a.DeviceName = p.DeviceName
	}
	if p.Platform != "" {
		a.Platform = p.Platform
	}
	if p.AppVersion != "" {
		a.AppVersion = p.AppVersion
	}
	a.IsActive = true
	a.LastSeenAt = p.At
	a.DeactivatedAt = nil
	a.DeactivatedReason = nil
	a.CurrentJTI = &jti
	a.TokenExpiresAt = &exp

	return copyActivation(a), nil
}

// GetActivation finds the row for a (license, device) pair
func (m *MemoryStore) GetActivation(ctx context.Context, licenseID, deviceID string) (*DeviceActivation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.findActivation(licenseID, deviceID)
	if a == nil {
		return nil, nil
	}
	return copyActivation(a), nil
}

// GetActivationByID retrieves an activation by ID
func (m *MemoryStore) GetActivationByID(ctx context.Context, activationID string) (*DeviceActivation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activations[activationID]
	if !ok {
		return nil, nil
	}
	return copyActivation(a), nil
}

// ListActiveActivations returns active devices, most recently seen first
func (m *MemoryStore) ListActiveActivations(ctx context.Context, licenseID string) ([]*DeviceActivation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*DeviceActivation
	for _, a := range m.activations {
		if a.LicenseID == licenseID && a.IsActive {
			out = append(out, copyActivation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

// CountActiveActivations counts active devices for a license
func (m *MemoryStore) CountActiveActivations(ctx context.Context, licenseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, a := range m.activations {
		if a.LicenseID == licenseID && a.IsActive {
			n++
		}
	}
	return n, nil
}

// TouchActivation updates last_seen_at only
func (m *MemoryStore) TouchActivation(ctx context.Context, activationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.activations[activationID]
	if !ok {
		return ErrNotFound
	}
	if at.After(a.LastSeenAt) {
		a.LastSeenAt = at
	}
	return nil
}

// RecordTokenIssued stores the newest jti/exp for an activation
func (m *MemoryStore) RecordTokenIssued(ctx context.Context, rec TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.activations[rec.ActivationID]
	if !ok {
		return ErrNotFound
	}
	jti := rec.TokenID
	exp := rec.ExpiresAt
	a.CurrentJTI = &jti
	a.TokenExpiresAt = &exp
	if rec.AppVersion != "" {
		a.AppVersion = rec.AppVersion
	}
	if rec.At.After(a.LastSeenAt) {
		a.LastSeenAt = rec.At
	}
	return nil
}

// DeactivateActivation soft-deletes an activation. Already inactive rows are left untouched.
func (m *MemoryStore) DeactivateActivation(ctx context.Context, activationID string, reason DeactivationReason, at time.Time) (bool, error) {
	if !reason.Valid() {
		return false, fmt.Errorf("%w: unknown deactivation reason %q", ErrInvalidRecord, reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.activations[activationID]
	if !ok {
		return false, ErrNotFound
	}
	if !a.IsActive {
		return false, nil
	}
	r := string(reason)
	a.IsActive = false
	a.DeactivatedAt = &at
	a.DeactivatedReason = &r
	return true, nil
}

// DeactivateStale deactivates active rows not seen since lastSeenBefore
func (m *MemoryStore) DeactivateStale(ctx context.Context, lastSeenBefore time.Time, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	r := string(ReasonStaleTimeout)
	for _, a := range m.activations {
		if a.IsActive && a.LastSeenAt.Before(lastSeenBefore) {
			a.IsActive = false
			ts := at
			reason := r
			a.DeactivatedAt = &ts
			a.DeactivatedReason = &reason
			n++
		}
	}
	return n, nil
}

// GetWalletByUserID retrieves a user's wallet
func (m *MemoryStore) GetWalletByUserID(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repository)(nil)
)
