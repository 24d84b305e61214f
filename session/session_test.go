package session

import (
	"context"
	"errors"
	"testing"
	"time"

	gate "github.com/agroconnect/gate-go"
)

// failingBackend implements Backend and fails every call.
type failingBackend struct{}

func (failingBackend) Save(context.Context, string, Data, time.Duration) error {
	return errors.New("save failed")
}

func (failingBackend) Get(context.Context, string) (*Data, error) {
	return nil, errors.New("get failed")
}

func (failingBackend) Delete(context.Context, string) error {
	return errors.New("delete failed")
}

func TestCreateLoad_RoundTrip(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)
	user := &gate.User{ID: "7", Name: "Sita", Role: gate.RoleFarmer}

	id, exp, err := store.Create(context.Background(), "tok-1", user)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a session id")
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v should be in the future", exp)
	}

	rec, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if rec.Token() != "tok-1" {
		t.Errorf("expected tok-1, got %s", rec.Token())
	}
	if rec.User() == nil || rec.User().ID != "7" {
		t.Errorf("expected user 7, got %+v", rec.User())
	}
}

func TestRecord_UserIsCopied(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)
	id, _, _ := store.Create(context.Background(), "tok", &gate.User{ID: "7"})
	rec, _ := store.Load(context.Background(), id)

	rec.User().ID = "changed"
	if rec.User().ID != "7" {
		t.Error("mutating the returned user must not change the record")
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, _, err := store.Create(context.Background(), "tok", nil)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestCreate_EmptyToken(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)
	if _, _, err := store.Create(context.Background(), "", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_Unknown(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)

	for _, id := range []string{"", "missing"} {
		if _, err := store.Load(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestLoad_Expired(t *testing.T) {
	store := New(NewMemoryBackend(), 10*time.Millisecond)
	id, _, err := store.Create(context.Background(), "tok", nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := store.Load(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDestroy(t *testing.T) {
	backend := NewMemoryBackend()
	store := New(backend, time.Hour)
	id, _, _ := store.Create(context.Background(), "tok", nil)

	if err := store.Destroy(context.Background(), id); err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}
	if backend.Len() != 0 {
		t.Errorf("expected empty backend, got %d entries", backend.Len())
	}
	if _, err := store.Load(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Destroy, got %v", err)
	}
}

func TestDestroy_EmptyID(t *testing.T) {
	store := New(NewMemoryBackend(), time.Hour)
	if err := store.Destroy(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestBackendFailures(t *testing.T) {
	store := New(failingBackend{}, time.Hour)
	ctx := context.Background()

	if _, _, err := store.Create(ctx, "tok", nil); err == nil {
		t.Error("Create: expected error")
	}
	if _, err := store.Load(ctx, "id"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Load: expected backend error, got %v", err)
	}
	if err := store.Destroy(ctx, "id"); err == nil {
		t.Error("Destroy: expected error")
	}
}

func TestNilRecord(t *testing.T) {
	var rec *Record
	if rec.Token() != "" || rec.User() != nil {
		t.Error("nil record should read as an empty session")
	}
}

func TestNew_DefaultTTL(t *testing.T) {
	if got := New(NewMemoryBackend(), 0).TTL(); got != DefaultTTL {
		t.Errorf("expected %v, got %v", DefaultTTL, got)
	}
}
