// internal/models/principal.go
package models

// Role is the authenticated principal's role, validated upstream by
// the authentication collaborator.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleEnterpriseManager Role = "enterprise_manager"
	RoleDCAUser           Role = "dca_user"
)

// Principal is the already-validated caller identity. The core uses
// role and DCAID only to scope queries.
type Principal struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	DCAID       string   `json:"dcaId,omitempty"`
}

// CanViewCase reports whether the principal may read the given case.
// dca_user principals see only cases assigned to their own agency.
func (p *Principal) CanViewCase(c *Case) bool {
	switch p.Role {
	case RoleAdmin, RoleEnterpriseManager:
		return true
	case RoleDCAUser:
		return p.DCAID != "" && c.AssignedDCA == p.DCAID
	default:
		return false
	}
}
