package identity

import (
	"context"
	"testing"
)

func TestEmitterDeliversNothingBeforeFirstReport(t *testing.T) {
	e := NewEmitter()
	var calls int
	unsubscribe := e.OnAuthStateChanged(func(*Identity) { calls++ })
	defer unsubscribe()

	if calls != 0 {
		t.Fatalf("expected no delivery before the provider reports, got %d", calls)
	}
	if _, reported := e.Current(); reported {
		t.Fatal("expected unreported state")
	}

	e.MarkSignedOut()
	if calls != 1 {
		t.Fatalf("expected one delivery after MarkSignedOut, got %d", calls)
	}
}

func TestEmitterReplaysCurrentStateToLateListener(t *testing.T) {
	e := NewEmitter()
	e.SignIn(Identity{UID: "u1", DisplayName: "Asha"})

	var got *Identity
	unsubscribe := e.OnAuthStateChanged(func(id *Identity) { got = id })
	defer unsubscribe()

	if got == nil || got.UID != "u1" || got.DisplayName != "Asha" {
		t.Fatalf("expected replay of u1, got %+v", got)
	}
}

func TestEmitterOrderAndUnsubscribe(t *testing.T) {
	e := NewEmitter()
	var seen []string
	unsubscribe := e.OnAuthStateChanged(func(id *Identity) {
		if id == nil {
			seen = append(seen, "out")
			return
		}
		seen = append(seen, id.UID)
	})

	e.SignIn(Identity{UID: "u1"})
	if err := e.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	e.SignIn(Identity{UID: "u2"})

	unsubscribe()
	unsubscribe()
	e.SignIn(Identity{UID: "u3"})

	want := []string{"u1", "out", "u2"}
	if len(seen) != len(want) {
		t.Fatalf("seen %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen %v, want %v", seen, want)
		}
	}
	if e.Listeners() != 0 {
		t.Fatalf("expected listener to be removed, have %d", e.Listeners())
	}
}

func TestEmitterListenerCannotMutateProviderState(t *testing.T) {
	e := NewEmitter()
	unsubscribe := e.OnAuthStateChanged(func(id *Identity) {
		if id != nil {
			id.UID = "tampered"
		}
	})
	defer unsubscribe()

	e.SignIn(Identity{UID: "u1"})
	cur, _ := e.Current()
	if cur == nil || cur.UID != "u1" {
		t.Fatalf("expected provider state to stay u1, got %+v", cur)
	}
}
