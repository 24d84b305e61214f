package fake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/fake"
)

func setup(opts ...fake.Option) *fake.Backend {
	base := []fake.Option{
		fake.WithToken("tok-farmer", "Farmer", "7"),
		fake.WithToken("tok-buyer", gate.RoleBuyer, "8"),
		fake.WithProfile(gate.RoleFarmer, "7"),
	}
	return fake.New(append(base, opts...)...)
}

// --- Decoder ---

func TestDecoder_KnownToken(t *testing.T) {
	b := setup()
	c, err := b.Decoder().Decode(context.Background(), "tok-farmer")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if c.Role != gate.RoleFarmer {
		t.Errorf("Role = %q, want farmer", c.Role)
	}
	if c.UserID != "7" {
		t.Errorf("UserID = %q, want 7", c.UserID)
	}
}

func TestDecoder_UnknownToken(t *testing.T) {
	if _, err := setup().Decoder().Decode(context.Background(), "nope"); err == nil {
		t.Fatal("Decode() expected error for unknown token")
	}
}

// --- Lookup ---

func TestLookup_Exists(t *testing.T) {
	b := setup()
	tests := []struct {
		role gate.Role
		user string
		want bool
	}{
		{gate.RoleFarmer, "7", true},
		{"FARMER", "7", true},
		{gate.RoleFarmer, "9", false},
		{gate.RoleBuyer, "8", false},
	}
	for _, tt := range tests {
		got, err := b.Lookup().Exists(context.Background(), tt.role, "tok", &gate.User{ID: tt.user})
		if err != nil {
			t.Errorf("Exists(%q, %q) error: %v", tt.role, tt.user, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Exists(%q, %q) = %v, want %v", tt.role, tt.user, got, tt.want)
		}
	}
	if b.CallCount() != len(tests) {
		t.Errorf("CallCount = %d, want %d", b.CallCount(), len(tests))
	}
}

func TestLookup_RecordsCalls(t *testing.T) {
	b := setup()
	_, _ = b.Lookup().Exists(context.Background(), "Transporter", "tok-x", &gate.User{ID: "3"})

	calls := b.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := fake.Call{Role: gate.RoleTransporter, Token: "tok-x", UserID: "3"}
	if calls[0] != want {
		t.Errorf("call = %+v, want %+v", calls[0], want)
	}
}

func TestLookup_UnknownRole(t *testing.T) {
	_, err := setup().Lookup().Exists(context.Background(), gate.RoleAdmin, "tok", nil)
	if gate.CodeOf(err) != gate.CodeUnknownRole {
		t.Fatalf("err = %v, want unknown role", err)
	}
}

func TestLookup_ScriptedError(t *testing.T) {
	boom := errors.New("boom")
	b := setup(fake.WithLookupError(gate.RoleTransporter, boom))

	_, err := b.Lookup().Exists(context.Background(), gate.RoleTransporter, "tok", &gate.User{ID: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestLookup_HoldAndRelease(t *testing.T) {
	b := setup(fake.WithHold())

	done := make(chan bool, 1)
	go func() {
		ok, _ := b.Lookup().Exists(context.Background(), gate.RoleFarmer, "tok", &gate.User{ID: "7"})
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("lookup returned before Release")
	case <-time.After(20 * time.Millisecond):
	}

	b.Release()
	b.Release()
	if ok := <-done; !ok {
		t.Error("expected profile to exist after release")
	}
}

func TestLookup_HoldHonorsContext(t *testing.T) {
	b := setup(fake.WithHold())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Lookup().Exists(ctx, gate.RoleFarmer, "tok", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// --- Session, Navigator, Recorder ---

func TestSession(t *testing.T) {
	s := fake.NewSession("tok", &gate.User{ID: "1"})
	if s.Token() != "tok" || s.User().ID != "1" {
		t.Errorf("session = %q/%+v", s.Token(), s.User())
	}
	empty := fake.NewSession("", nil)
	if empty.Token() != "" || empty.User() != nil {
		t.Error("empty session should have no token and no user")
	}
}

func TestNavigator(t *testing.T) {
	var n fake.Navigator
	n.Replace("/login")
	n.Replace("/create-farmer-profile")

	got := n.Locations()
	if len(got) != 2 || got[0] != "/login" || got[1] != "/create-farmer-profile" {
		t.Errorf("Locations = %v", got)
	}
}

func TestRecorder(t *testing.T) {
	var r fake.Recorder
	r.RecordDecision("render", "farmer")
	r.RecordDecision("render", "buyer")
	r.RecordLookup("farmer", "found", 0.01)

	if r.Decisions("render") != 2 {
		t.Errorf("render decisions = %d, want 2", r.Decisions("render"))
	}
	if r.Lookups("found") != 1 {
		t.Errorf("found lookups = %d, want 1", r.Lookups("found"))
	}
}

func TestGuard_Wired(t *testing.T) {
	b := setup()
	g := b.Guard(gate.Config{})
	d := g.Evaluate(context.Background(), fake.NewSession("tok-farmer", &gate.User{ID: "7"}), []gate.Role{gate.RoleFarmer})
	if d.Outcome != gate.OutcomeRender {
		t.Errorf("Outcome = %v, want render", d.Outcome)
	}
}
