// Package domain contains entity types without protocol logic: roles,
// client identifiers, and the wire envelope shared by the event scope
// and object synchronizer layers.
package domain

// Role is a meeting-level authorization label attached to the human
// user behind a client identifier. The set is extensible; callers
// should not switch exhaustively over it.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RolePresenter Role = "presenter"
	RoleAttendee  Role = "attendee"
	RoleGuest     Role = "guest"
)

// RoleSet is an unordered collection of Roles with O(1) membership and
// intersection checks.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles, deduplicating.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Intersects reports whether s and other share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for r := range small {
		if _, ok := big[r]; ok {
			return true
		}
	}
	return false
}

// Add returns a new RoleSet with r included, leaving s untouched.
func (s RoleSet) Add(r Role) RoleSet {
	out := make(RoleSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[r] = struct{}{}
	return out
}

// Slice returns the roles in s in no particular order, for logging.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	return out
}
