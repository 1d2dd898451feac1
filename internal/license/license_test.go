package license_test

import (
	"context"
	"errors"
	"testing"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/testutil"
)

func TestResolve_DefaultState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	ctx := context.Background()

	if f := license.NewManager(settings, true).Resolve(ctx); !f.Pro {
		t.Errorf("expected default Pro gate open, got %+v", f)
	}
	if f := license.NewManager(settings, false).Resolve(ctx); f.Pro {
		t.Errorf("expected closed gate, got %+v", f)
	}
}

func TestActivateAndCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	m := license.NewManager(settings, false)
	ctx := context.Background()

	if _, err := m.Activate(ctx, "not-a-key"); err == nil {
		t.Fatal("expected invalid key error")
	}
	f, err := m.Activate(ctx, "SW-AB12-CD34-EF56")
	if err != nil || !f.Pro {
		t.Fatalf("Activate: %+v %v", f, err)
	}

	// A tampered key fails the daily check.
	settings.Set(ctx, database.KeyLicenseKey, "SW-bad")
	f, err = m.Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Pro || f.Status != license.StatusInvalid {
		t.Errorf("expected invalid status, got %+v", f)
	}

	if err := m.Deactivate(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Resolve(ctx).Pro {
		t.Error("expected gate closed after deactivate")
	}
}

func TestFeaturesRequire(t *testing.T) {
	if err := license.Free.Require(); !errors.Is(err, license.ErrProRequired) {
		t.Errorf("expected ErrProRequired, got %v", err)
	}
	if err := license.Pro.Require(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestForContext_PrefersRequestValue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := license.NewManager(&database.Settings{DB: db}, true)
	ctx := license.WithFeatures(context.Background(), license.Free)
	if m.ForContext(ctx).Pro {
		t.Error("expected request-scoped features to win")
	}
}
