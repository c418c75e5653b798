package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"momsvpn/backend/domain"
	"momsvpn/backend/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "users.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open("postgres", "dsn", nil)
	if !errors.Is(err, repository.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestUserRepo_UpsertKeepsExistingNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewUserRepo(newTestStore(t))

	created, err := repo.Upsert(ctx, domain.User{TelegramID: 42, Username: "Anna", FullName: "Anna K"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.DevicesLimit != domain.DefaultDevicesLimit {
		t.Fatalf("expected default devices limit %d, got %d", domain.DefaultDevicesLimit, created.DevicesLimit)
	}

	updated, err := repo.Upsert(ctx, domain.User{TelegramID: 42, IsMember: true})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.Username != "Anna" || updated.FullName != "Anna K" {
		t.Fatalf("expected names to be kept, got %q/%q", updated.Username, updated.FullName)
	}
	if !updated.IsMember {
		t.Fatalf("expected member flag to be updated")
	}

	n, err := repo.Count(ctx, false)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 user, got %d (err=%v)", n, err)
	}
}

func TestUserRepo_GetMissing(t *testing.T) {
	t.Parallel()

	repo := NewUserRepo(newTestStore(t))
	_, err := repo.Get(context.Background(), 7)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SetDevicesLimit(context.Background(), 7, 3); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from SetDevicesLimit, got %v", err)
	}
}

func TestUserRepo_SubscriptionAndSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewUserRepo(newTestStore(t))

	for _, u := range []domain.User{
		{TelegramID: 1, Username: "Alice"},
		{TelegramID: 2, Username: "bob", IsMember: true},
		{TelegramID: 3, Username: "carol"},
	} {
		if _, err := repo.Upsert(ctx, u); err != nil {
			t.Fatalf("upsert %d: %v", u.TelegramID, err)
		}
	}

	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(48 * time.Hour)
	admin := int64(99)
	if err := repo.SetSubscription(ctx, 1, soon, &admin); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if err := repo.SetSubscription(ctx, 3, later, nil); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	subs, err := repo.ListWithSubscription(ctx)
	if err != nil {
		t.Fatalf("list with subscription: %v", err)
	}
	if len(subs) != 2 || subs[0].TelegramID != 3 || subs[1].TelegramID != 1 {
		t.Fatalf("unexpected subscription order: %+v", subs)
	}
	if subs[1].AddedBy == nil || *subs[1].AddedBy != admin {
		t.Fatalf("expected added_by %d, got %v", admin, subs[1].AddedBy)
	}

	found, err := repo.FindByUsername(ctx, "ALICE")
	if err != nil || found.TelegramID != 1 {
		t.Fatalf("expected alice, got %+v (err=%v)", found, err)
	}

	nonMembers, err := repo.Count(ctx, true)
	if err != nil || nonMembers != 2 {
		t.Fatalf("expected 2 non-members, got %d (err=%v)", nonMembers, err)
	}

	page, err := repo.List(ctx, repository.UserListOptions{Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("expected page of 2, got %d (err=%v)", len(page), err)
	}
}

func TestDeviceRepo_TouchUpdatesLastSeen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewDeviceRepo(newTestStore(t))

	id := domain.StableDeviceID("token", "Happ/3.7.0/ios")
	first, err := repo.Touch(ctx, domain.Device{ID: id, AppName: "Happ", IPAddress: "1.1.1.1"})
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := repo.Touch(ctx, domain.Device{ID: id, AppName: "Happ", IPAddress: "2.2.2.2"})
	if err != nil {
		t.Fatalf("touch again: %v", err)
	}

	if second.IPAddress != "2.2.2.2" {
		t.Fatalf("expected ip to be refreshed, got %q", second.IPAddress)
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Fatalf("expected last_seen to advance: %v -> %v", first.LastSeen, second.LastSeen)
	}

	items, err := repo.List(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 device, got %d (err=%v)", len(items), err)
	}
}

func TestTermsRepo_AcceptIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewTermsRepo(newTestStore(t))

	ok, err := repo.IsAccepted(ctx, 5)
	if err != nil || ok {
		t.Fatalf("expected not accepted, got %v (err=%v)", ok, err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.Accept(ctx, 5); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}
	ok, err = repo.IsAccepted(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("expected accepted, got %v (err=%v)", ok, err)
	}
}
