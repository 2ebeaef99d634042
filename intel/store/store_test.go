package store

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adlens/adlens/dbopen"
	"github.com/adlens/adlens/normalize"
)

func bundle(niche, location string, ads int) *NicheIntelligence {
	records := make([]normalize.AdRecord, ads)
	for i := range records {
		records[i] = normalize.AdRecord{Advertiser: "A", Headline: "h"}
	}
	return &NicheIntelligence{
		Niche:       niche,
		Location:    location,
		Keywords:    []string{niche + " keyword"},
		LastUpdated: time.Now().UTC().Truncate(time.Millisecond),
		Ads:         records,
	}
}

// backends returns every store implementation that runs without external
// services (Redis is exercised in integration environments only).
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStore_GetSetRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("fitness", "us")

			if _, err := s.Get(ctx, key); err != ErrNotFound {
				t.Errorf("Get on empty store = %v, want ErrNotFound", err)
			}

			in := bundle("fitness", "us", 3)
			if err := s.Set(ctx, key, in); err != nil {
				t.Fatalf("Set: %v", err)
			}

			out, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if out.Niche != "fitness" || len(out.Ads) != 3 {
				t.Errorf("round trip lost data: %+v", out)
			}
			if !out.LastUpdated.Equal(in.LastUpdated) {
				t.Errorf("LastUpdated = %v, want %v", out.LastUpdated, in.LastUpdated)
			}
		})
	}
}

func TestStore_AliasResolvesToSameBundle(t *testing.T) {
	// WHAT: lookups via a related-keyword alias return the bundle stored
	// under the primary key, same lastUpdated.
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("fitness", "us")
			in := bundle("fitness", "us", 1)

			if err := s.Set(ctx, key, in); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.SetAlias(ctx, "gym membership_us", key); err != nil {
				t.Fatalf("SetAlias: %v", err)
			}

			got, err := s.Get(ctx, "gym membership_us")
			if err != nil {
				t.Fatalf("Get via alias: %v", err)
			}
			if !got.LastUpdated.Equal(in.LastUpdated) {
				t.Errorf("alias returned different bundle")
			}
		})
	}
}

func TestStore_AliasFirstWriterWins(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := bundle("fitness", "us", 1)
			b := bundle("med-spa", "us", 2)
			if err := s.Set(ctx, Key("fitness", "us"), a); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, Key("med-spa", "us"), b); err != nil {
				t.Fatal(err)
			}

			alias := "weight loss_us"
			if err := s.SetAlias(ctx, alias, Key("fitness", "us")); err != nil {
				t.Fatal(err)
			}
			// Second write to a populated alias is a silent no-op.
			if err := s.SetAlias(ctx, alias, Key("med-spa", "us")); err != nil {
				t.Fatal(err)
			}

			got, err := s.Get(ctx, alias)
			if err != nil {
				t.Fatal(err)
			}
			if got.Niche != "fitness" {
				t.Errorf("alias resolved to %q, want the first writer's target", got.Niche)
			}
		})
	}
}

func TestStore_AliasNeverShadowsPrimary(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("fitness", "us")
			if err := s.Set(ctx, key, bundle("fitness", "us", 1)); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, Key("med-spa", "us"), bundle("med-spa", "us", 1)); err != nil {
				t.Fatal(err)
			}
			if err := s.SetAlias(ctx, key, Key("med-spa", "us")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatal(err)
			}
			if got.Niche != "fitness" {
				t.Errorf("primary entry shadowed by alias")
			}
		})
	}
}

func TestStore_SetReplacesWholesale(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("fitness", "us")
			if err := s.Set(ctx, key, bundle("fitness", "us", 5)); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, key, bundle("fitness", "us", 2)); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Ads) != 2 {
				t.Errorf("ads = %d, want fully replaced entry with 2", len(got.Ads))
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := s.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if empty.NichesTracked != 0 || empty.TotalAdsCollected != 0 {
				t.Errorf("empty stats = %+v", empty)
			}

			old := bundle("fitness", "us", 2)
			old.LastUpdated = time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Millisecond)
			if err := s.Set(ctx, Key("fitness", "us"), old); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, Key("dental", "uk"), bundle("dental", "uk", 3)); err != nil {
				t.Fatal(err)
			}
			if err := s.SetAlias(ctx, "implants_uk", Key("dental", "uk")); err != nil {
				t.Fatal(err)
			}

			st, err := s.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if st.NichesTracked != 2 {
				t.Errorf("NichesTracked = %d, want 2 (aliases excluded)", st.NichesTracked)
			}
			if st.TotalAdsCollected != 5 {
				t.Errorf("TotalAdsCollected = %d, want 5", st.TotalAdsCollected)
			}
			if !st.OldestData.Equal(old.LastUpdated) {
				t.Errorf("OldestData = %v, want %v", st.OldestData, old.LastUpdated)
			}
			if !st.NewestData.After(st.OldestData) {
				t.Errorf("NewestData %v not after OldestData %v", st.NewestData, st.OldestData)
			}
		})
	}
}

func TestSQLite_CloseReleasesDatabase(t *testing.T) {
	// WHY: the store owns its handle — main opens the DB and hands it
	// over, so a no-op Close would leak the connection pool.
	s, err := NewSQLite(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, Key("dental", "us"), bundle("dental", "us", 1)); err != nil {
		t.Fatalf("Set before Close: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Set(ctx, Key("dental", "uk"), bundle("dental", "uk", 1)); err == nil {
		t.Fatal("Set after Close should fail on a closed database")
	}
}
