package auth

import "fmt"

// Role is the closed set of account kinds.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Capability names an action guarded by role.
type Capability string

const (
	CapPurchase           Capability = "purchase"
	CapIssueToken         Capability = "issue_token"
	CapHandoff            Capability = "handoff"
	CapMarkOutForDelivery Capability = "mark_out_for_delivery"
	CapCancelOrder        Capability = "cancel_order"
)

var grants = map[Role]map[Capability]bool{
	RoleBuyer: {
		CapPurchase:   true,
		CapIssueToken: true,
	},
	RoleSeller: {
		CapPurchase:   true,
		CapIssueToken: true,
	},
	RoleAgent: {
		CapHandoff:            true,
		CapMarkOutForDelivery: true,
	},
	RoleAdmin: {
		CapHandoff:            true,
		CapMarkOutForDelivery: true,
		CapCancelOrder:        true,
	},
}

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := grants[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Can reports whether role holds capability.
func Can(role Role, capability Capability) bool {
	return grants[role][capability]
}
