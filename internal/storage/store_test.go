package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annolab/webmark/internal/model"
)

// openTestStore opens a store in a temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

// TestOpenWithoutCreate tests that a missing store is an error when
// creation is disabled.
func TestOpenWithoutCreate(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
	if err == nil {
		t.Fatal("expected error opening a missing store without create")
	}
}

// TestCredentialsRoundTrip tests save, load, and logout clearing.
func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	loaded, err := store.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if !loaded.Empty() {
		t.Fatalf("fresh store must have no credentials, got %+v", loaded)
	}

	creds := model.Credentials{Username: "ann", Password: "hunter2"}
	if err := store.SaveCredentials(ctx, creds); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	loaded, err = store.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if loaded != creds {
		t.Errorf("loaded %+v, expected %+v", loaded, creds)
	}

	// Overwrite replaces, not appends.
	replacement := model.Credentials{Username: "ann", Password: "hunter3"}
	if err := store.SaveCredentials(ctx, replacement); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != replacement {
		t.Errorf("loaded %+v after overwrite, expected %+v", loaded, replacement)
	}

	if err := store.ClearCredentials(ctx); err != nil {
		t.Fatalf("ClearCredentials() error = %v", err)
	}
	loaded, err = store.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Empty() {
		t.Errorf("credentials survived logout: %+v", loaded)
	}
}

// TestSaveCredentialsValidates tests that partial logins are rejected.
func TestSaveCredentialsValidates(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	err := store.SaveCredentials(context.Background(), model.Credentials{Username: "ann"})
	if !errors.Is(err, model.ErrMissingPassword) {
		t.Errorf("SaveCredentials() error = %v, expected ErrMissingPassword", err)
	}
}

// TestJournalPageView tests journaling sealed views and reading them back.
func TestJournalPageView(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	views := []model.PageView{
		{URL: "https://example.com/a", Referrer: "https://example.com", Start: start},
		{URL: "https://example.com/b", Referrer: "https://example.com/a", Start: start.Add(time.Minute)},
	}
	for i := range views {
		views[i].Seal(views[i].Start.Add(30 * time.Second))
		if _, err := store.JournalPageView(ctx, views[i]); err != nil {
			t.Fatalf("JournalPageView() error = %v", err)
		}
	}

	count, err := store.JournalCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("JournalCount() = %d, expected 2", count)
	}

	entries, err := store.RecentJournal(ctx, 10)
	if err != nil {
		t.Fatalf("RecentJournal() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("RecentJournal() returned %d entries, expected 2", len(entries))
	}
	// Newest first.
	if entries[0].URL != "https://example.com/b" {
		t.Errorf("first entry URL = %q, expected the newest view", entries[0].URL)
	}
	if entries[0].Dwell != 30*time.Second {
		t.Errorf("dwell = %v, expected 30s", entries[0].Dwell)
	}
	if entries[0].Referrer != "https://example.com/a" {
		t.Errorf("referrer = %q, expected previous view URL", entries[0].Referrer)
	}
}

// TestJournalRejectsUnsealedView tests the sealed-only journal rule.
func TestJournalRejectsUnsealedView(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	open := model.PageView{URL: "https://example.com/a", Start: time.Now()}
	if _, err := store.JournalPageView(context.Background(), open); err == nil {
		t.Fatal("expected error journaling an unsealed view")
	}
}

// TestStoreSurvivesReopen tests that stored state outlives the process,
// which is what the restartable coordinator depends on.
func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	creds := model.Credentials{Username: "ann", Password: "hunter2"}
	if err := store.SaveCredentials(ctx, creds); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != creds {
		t.Errorf("loaded %+v after reopen, expected %+v", loaded, creds)
	}
}
