package permission

import (
	"testing"

	"github.com/civix-platform/civix/session"
)

func TestDefaultRoleCapabilities(t *testing.T) {
	rm, err := NewDefaultRoleManager()
	if err != nil {
		t.Fatalf("NewDefaultRoleManager failed: %v", err)
	}

	cases := []struct {
		role session.Role
		cap  string
		want bool
	}{
		{session.RoleCitizen, TicketCreate, true},
		{session.RoleCitizen, TicketAssign, false},
		{session.RoleTechnician, TicketResolve, true},
		{session.RoleTechnician, TicketCreate, false},
		{session.RoleAuthorityAdmin, TechnicianManage, true},
		{session.RoleAuthorityAdmin, RewardsView, false},
		{session.RoleCitizen, "ticket.teleport", false},
		{session.Role(""), TicketCreate, false},
	}
	for _, tc := range cases {
		if got := rm.Can(tc.role, tc.cap); got != tc.want {
			t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.cap, got, tc.want)
		}
	}
	if rm.Count() != 3 {
		t.Fatalf("expected 3 roles, got %d", rm.Count())
	}
}

func TestRoleManagerFrozenAfterBuild(t *testing.T) {
	rm, err := NewDefaultRoleManager()
	if err != nil {
		t.Fatalf("NewDefaultRoleManager failed: %v", err)
	}
	if err := rm.RegisterRole(session.RoleCitizen, nil); err == nil {
		t.Fatal("expected frozen role manager to reject registration")
	}
}

func TestRoleManagerFromTableRejectsUnknownRole(t *testing.T) {
	_, err := NewRoleManagerFromTable(map[session.Role][]string{"mayor": {TicketCreate}})
	if err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestCapabilitiesListedInBitOrder(t *testing.T) {
	rm, err := NewRoleManagerFromTable(map[session.Role][]string{
		session.RoleCitizen:    {TicketCreate, RewardsView},
		session.RoleTechnician: {TicketResolve, TicketCreate},
	})
	if err != nil {
		t.Fatalf("NewRoleManagerFromTable failed: %v", err)
	}
	got := rm.Capabilities(session.RoleTechnician)
	want := []string{TicketCreate, TicketResolve}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Capabilities = %v, want %v", got, want)
	}
}

func TestRegistryRejectsDuplicatesAndOverflow(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("a"); err == nil {
		t.Fatal("expected duplicate to fail")
	}
	for i := 1; i < maxCapabilities; i++ {
		if _, err := r.Register(string(rune('A'+i%26)) + string(rune('0'+i/26)) + "x"); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); err == nil {
		t.Fatal("expected capability limit error")
	}
}
