// Package license implements the Pro feature gate.
//
// The gate is resolved once per request (see server.LicenseMiddleware) and the
// resulting Features value is passed explicitly to every service call that
// has Pro-only behaviour.
package license

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"stockwatch/internal/database"
)

// ErrProRequired is returned when a Pro-only operation runs with a closed gate.
var ErrProRequired = errors.New("this feature requires an active Pro license")

// License statuses as stored in settings.
const (
	StatusActive   = "active"
	StatusInvalid  = "invalid"
	StatusInactive = "inactive"
)

// Features is the capability set of one request.
type Features struct {
	Pro    bool   `json:"pro"`
	Status string `json:"status"`
}

// Require returns ErrProRequired unless the Pro gate is open.
func (f Features) Require() error {
	if !f.Pro {
		return ErrProRequired
	}
	return nil
}

// Free is a closed gate.
var Free = Features{Pro: false, Status: StatusInactive}

// Pro is an open gate.
var Pro = Features{Pro: true, Status: StatusActive}

var keyPattern = regexp.MustCompile(`^SW-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// ValidKey reports whether key has the expected license key shape.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Manager reads and maintains the license state.
type Manager struct {
	Settings *database.Settings
	// DefaultPro is the gate state when no license was ever recorded.
	DefaultPro bool
	Now        func() time.Time
}

// NewManager creates a Manager.
func NewManager(settings *database.Settings, defaultPro bool) *Manager {
	return &Manager{Settings: settings, DefaultPro: defaultPro, Now: time.Now}
}

// Resolve reads the stored license status.
func (m *Manager) Resolve(ctx context.Context) Features {
	def := StatusInactive
	if m.DefaultPro {
		def = StatusActive
	}
	status := m.Settings.Get(ctx, database.KeyLicenseStatus, def)
	return Features{Pro: status == StatusActive, Status: status}
}

// ForContext returns the Features stored in ctx, resolving them if absent.
func (m *Manager) ForContext(ctx context.Context) Features {
	if f, ok := FromContext(ctx); ok {
		return f
	}
	return m.Resolve(ctx)
}

// Activate validates and stores a license key.
func (m *Manager) Activate(ctx context.Context, key string) (Features, error) {
	if !ValidKey(key) {
		return Free, errors.New("license key format is invalid")
	}
	if err := m.Settings.Set(ctx, database.KeyLicenseKey, key); err != nil {
		return Free, err
	}
	if err := m.Settings.Set(ctx, database.KeyLicenseStatus, StatusActive); err != nil {
		return Free, err
	}
	return Pro, nil
}

// Deactivate removes the license key and closes the gate.
func (m *Manager) Deactivate(ctx context.Context) error {
	if err := m.Settings.Delete(ctx, database.KeyLicenseKey); err != nil {
		return err
	}
	return m.Settings.Set(ctx, database.KeyLicenseStatus, StatusInactive)
}

// Check re-validates the stored key and persists the outcome. Without a key
// the default state is kept.
func (m *Manager) Check(ctx context.Context) (Features, error) {
	key := m.Settings.Get(ctx, database.KeyLicenseKey, "")
	if key != "" {
		status := StatusActive
		if !ValidKey(key) {
			status = StatusInvalid
		}
		if err := m.Settings.Set(ctx, database.KeyLicenseStatus, status); err != nil {
			return Free, err
		}
	}
	if err := m.Settings.Set(ctx, database.KeyLicenseCheckedAt, database.FormatTime(m.Now())); err != nil {
		return Free, err
	}
	return m.Resolve(ctx), nil
}

// Run performs Check every interval until ctx is done. extra runs after each
// check (the daily maintenance hook).
func (m *Manager) Run(ctx context.Context, interval time.Duration, extra func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := m.Check(ctx)
			if err != nil {
				log.Printf("license: check failed: %v", err)
				continue
			}
			log.Printf("license: status %s (pro=%v)", f.Status, f.Pro)
			if extra != nil {
				extra(ctx)
			}
		}
	}
}

type ctxKey struct{}

// WithFeatures stores f in ctx.
func WithFeatures(ctx context.Context, f Features) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// FromContext returns the Features stored by WithFeatures.
func FromContext(ctx context.Context) (Features, bool) {
	f, ok := ctx.Value(ctxKey{}).(Features)
	return f, ok
}
