// Package identity models the authenticated caller handed over by the auth
// layer. The core never authenticates; it trusts the validated claims and
// derives capabilities from the role exactly once.
package identity

// Role labels come from the auth collaborator unchanged.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Capability is an explicit permission derived from the role. Call sites check
// capabilities, never usernames.
type Capability string

const (
	CapManageTemplates     Capability = "manage_templates"
	CapManageSignatures    Capability = "manage_signatures"
	CapReissue             Capability = "reissue"
	CapBypassSignature     Capability = "bypass_signature"
	CapBypassLocalityCheck Capability = "bypass_locality_check"
)

var roleCapabilities = map[Role][]Capability{
	RoleStaff: nil,
	RoleAdmin: {
		CapManageTemplates,
		CapManageSignatures,
		CapReissue,
		CapBypassLocalityCheck,
	},
	RoleSuperadmin: {
		CapManageTemplates,
		CapManageSignatures,
		CapReissue,
		CapBypassLocalityCheck,
		CapBypassSignature,
	},
}

// Identity is the authenticated caller.
type Identity struct {
	Username string
	Role     Role
}

func (i Identity) HasCapability(c Capability) bool {
	for _, have := range roleCapabilities[i.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Elevated reports whether the identity holds an administrative role.
func (i Identity) Elevated() bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperadmin
}
