package permission

import (
	"errors"
	"fmt"
	"sync"

	"github.com/civix-platform/civix/session"
)

// Capability names used by the Civix clients.
const (
	TicketCreate       = "ticket.create"
	TicketViewOwn      = "ticket.view_own"
	TicketComment      = "ticket.comment"
	TicketViewAssigned = "ticket.view_assigned"
	TicketUpdateStatus = "ticket.update_status"
	TicketResolve      = "ticket.resolve"
	TicketViewAll      = "ticket.view_all"
	TicketAssign       = "ticket.assign"
	TechnicianManage   = "technician.manage"
	AnalyticsView      = "analytics.view"
	RewardsView        = "rewards.view"
)

// DefaultRoles is the capability table shipped with the clients.
var DefaultRoles = map[session.Role][]string{
	session.RoleCitizen: {
		TicketCreate, TicketViewOwn, TicketComment, RewardsView,
	},
	session.RoleTechnician: {
		TicketViewAssigned, TicketUpdateStatus, TicketResolve, TicketComment,
	},
	session.RoleAuthorityAdmin: {
		TicketViewAll, TicketAssign, TicketUpdateStatus, TicketResolve, TicketComment,
		TechnicianManage, AnalyticsView,
	},
}

// RoleManager holds the capability mask of every role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[session.Role]Mask
	frozen bool
}

// NewRoleManager returns a role manager resolving names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[session.Role]Mask),
	}
}

// NewDefaultRoleManager registers every capability of [DefaultRoles] and
// returns a frozen role manager for it.
func NewDefaultRoleManager() (*RoleManager, error) {
	return NewRoleManagerFromTable(DefaultRoles)
}

// NewRoleManagerFromTable builds a frozen registry and role manager from
// table. Capabilities are registered in first-seen order of the canonical
// role order, so bit positions are deterministic.
func NewRoleManagerFromTable(table map[session.Role][]string) (*RoleManager, error) {
	registry := NewRegistry()
	order := []session.Role{session.RoleCitizen, session.RoleTechnician, session.RoleAuthorityAdmin}
	for role := range table {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
		}
	}
	for _, role := range order {
		for _, name := range table[role] {
			if _, ok := registry.Bit(name); ok {
				continue
			}
			if _, err := registry.Register(name); err != nil {
				return nil, err
			}
		}
	}
	registry.Freeze()

	rm := NewRoleManager(registry)
	for _, role := range order {
		caps, ok := table[role]
		if !ok {
			continue
		}
		if err := rm.RegisterRole(role, caps); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}

// RegisterRole sets the capabilities of role.
func (rm *RoleManager) RegisterRole(role session.Role, capabilities []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if !role.Valid() {
		return session.ErrUnknownRole
	}
	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered")
	}

	var mask Mask
	for _, name := range capabilities {
		bit, ok := rm.registry.Bit(name)
		if !ok {
			return errors.New("capability not registered: " + name)
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the capability mask of role.
func (rm *RoleManager) Mask(role session.Role) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[role]
	return mask, ok
}

// Can reports whether role holds capability. Unknown roles and capabilities
// hold nothing.
func (rm *RoleManager) Can(role session.Role, capability string) bool {
	bit, ok := rm.registry.Bit(capability)
	if !ok {
		return false
	}
	mask, ok := rm.Mask(role)
	return ok && mask.Has(bit)
}

// Capabilities lists the capability names of role.
func (rm *RoleManager) Capabilities(role session.Role) []string {
	mask, ok := rm.Mask(role)
	if !ok {
		return nil
	}
	return rm.registry.Names(mask)
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
