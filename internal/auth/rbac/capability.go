// Package rbac declares the capability model as static data: which
// (action, subject) pairs each global role and each team role grants. The
// tables are plain values, so authorization behavior is tested exhaustively
// without touching a store.
package rbac

import "github.com/driftbox/authcore/domain"

// Action is a verb a caller may perform on a subject.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionShare  Action = "share"
	ActionManage Action = "manage"
)

// Subject is a resource class actions apply to.
type Subject string

const (
	SubjectFile    Subject = "files"
	SubjectFolder  Subject = "folders"
	SubjectShare   Subject = "shares"
	SubjectAPIKey  Subject = "api_keys"
	SubjectSession Subject = "sessions"
	SubjectAccount Subject = "account"
	SubjectTeam    Subject = "teams"
	SubjectMember  Subject = "members"
	SubjectBilling Subject = "billing"
)

// Capability is one permitted (action, subject) pair.
type Capability struct {
	Action  Action
	Subject Subject
}

// wildcard marks an unrestricted set; present only in admin sets.
var wildcard = Capability{Action: "*", Subject: "*"}

// Set is a capability set. The zero value is empty and grants nothing.
type Set map[Capability]struct{}

// Has reports whether the set satisfies the capability, either exactly or
// through the unrestricted wildcard.
func (s Set) Has(c Capability) bool {
	if _, ok := s[wildcard]; ok {
		return true
	}
	_, ok := s[c]
	return ok
}

// Union returns a new set containing both operands' capabilities.
func Union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for c := range a {
		out[c] = struct{}{}
	}
	for c := range b {
		out[c] = struct{}{}
	}
	return out
}

func newSet(caps ...Capability) Set {
	out := make(Set, len(caps))
	for _, c := range caps {
		out[c] = struct{}{}
	}
	return out
}

// personalCapabilities is the fixed personal-capability table indexed by
// global role. The admin role short-circuits to unrestricted.
var personalCapabilities = map[domain.Role]Set{
	domain.RoleUser: newSet(
		Capability{ActionRead, SubjectFile},
		Capability{ActionCreate, SubjectFile},
		Capability{ActionUpdate, SubjectFile},
		Capability{ActionDelete, SubjectFile},
		Capability{ActionRead, SubjectFolder},
		Capability{ActionCreate, SubjectFolder},
		Capability{ActionUpdate, SubjectFolder},
		Capability{ActionDelete, SubjectFolder},
		Capability{ActionRead, SubjectShare},
		Capability{ActionCreate, SubjectShare},
		Capability{ActionDelete, SubjectShare},
		Capability{ActionRead, SubjectAPIKey},
		Capability{ActionCreate, SubjectAPIKey},
		Capability{ActionUpdate, SubjectAPIKey},
		Capability{ActionDelete, SubjectAPIKey},
		Capability{ActionRead, SubjectSession},
		Capability{ActionDelete, SubjectSession},
		Capability{ActionRead, SubjectAccount},
		Capability{ActionUpdate, SubjectAccount},
	),
	domain.RoleAdmin: newSet(wildcard),
}

// teamCapabilities is the team-capability table indexed by team role. These
// apply only to actions scoped to the selected team.
var teamCapabilities = map[domain.TeamRole]Set{
	domain.TeamRoleViewer: newSet(
		Capability{ActionRead, SubjectFile},
		Capability{ActionRead, SubjectFolder},
		Capability{ActionRead, SubjectShare},
		Capability{ActionRead, SubjectTeam},
	),
	domain.TeamRoleMember: newSet(
		Capability{ActionRead, SubjectFile},
		Capability{ActionCreate, SubjectFile},
		Capability{ActionUpdate, SubjectFile},
		Capability{ActionDelete, SubjectFile},
		Capability{ActionRead, SubjectFolder},
		Capability{ActionCreate, SubjectFolder},
		Capability{ActionUpdate, SubjectFolder},
		Capability{ActionRead, SubjectShare},
		Capability{ActionCreate, SubjectShare},
		Capability{ActionRead, SubjectTeam},
		Capability{ActionRead, SubjectMember},
	),
	domain.TeamRoleAdmin: newSet(
		Capability{ActionRead, SubjectFile},
		Capability{ActionCreate, SubjectFile},
		Capability{ActionUpdate, SubjectFile},
		Capability{ActionDelete, SubjectFile},
		Capability{ActionRead, SubjectFolder},
		Capability{ActionCreate, SubjectFolder},
		Capability{ActionUpdate, SubjectFolder},
		Capability{ActionDelete, SubjectFolder},
		Capability{ActionRead, SubjectShare},
		Capability{ActionCreate, SubjectShare},
		Capability{ActionDelete, SubjectShare},
		Capability{ActionRead, SubjectTeam},
		Capability{ActionUpdate, SubjectTeam},
		Capability{ActionRead, SubjectMember},
		Capability{ActionManage, SubjectMember},
	),
	domain.TeamRoleOwner: newSet(
		Capability{ActionRead, SubjectFile},
		Capability{ActionCreate, SubjectFile},
		Capability{ActionUpdate, SubjectFile},
		Capability{ActionDelete, SubjectFile},
		Capability{ActionRead, SubjectFolder},
		Capability{ActionCreate, SubjectFolder},
		Capability{ActionUpdate, SubjectFolder},
		Capability{ActionDelete, SubjectFolder},
		Capability{ActionRead, SubjectShare},
		Capability{ActionCreate, SubjectShare},
		Capability{ActionDelete, SubjectShare},
		Capability{ActionRead, SubjectTeam},
		Capability{ActionUpdate, SubjectTeam},
		Capability{ActionDelete, SubjectTeam},
		Capability{ActionRead, SubjectMember},
		Capability{ActionManage, SubjectMember},
		Capability{ActionRead, SubjectBilling},
		Capability{ActionManage, SubjectBilling},
	),
}

// Personal returns a copy of the personal capability set for a global role.
// Unknown roles grant nothing.
func Personal(role domain.Role) Set {
	return Union(personalCapabilities[role], nil)
}

// ForTeamRole returns a copy of the team capability set for a team role.
// Unknown roles grant nothing.
func ForTeamRole(role domain.TeamRole) Set {
	return Union(teamCapabilities[role], nil)
}

// Effective computes the capability set of an identity: the personal set
// for its global role, plus the team set when a team context is attached.
func Effective(identity *domain.Identity) Set {
	set := Personal(identity.Role)
	if identity.TeamID != "" {
		set = Union(set, ForTeamRole(identity.TeamRole))
	}
	return set
}

// ScopeFor maps a capability onto the API-key scope string that grants it.
func ScopeFor(c Capability) string {
	return string(c.Subject) + ":" + string(c.Action)
}
