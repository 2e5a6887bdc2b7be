// Package rbac decides what each campus role may do.
package rbac

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionReport   Action = "report"
	ActionFollow   Action = "follow"
	ActionModerate Action = "moderate"
	ActionAnnounce Action = "announce"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleUser:
		return action == ActionRead || action == ActionReport || action == ActionFollow
	default:
		return false
	}
}

// Normalize maps unknown roles to RoleUser.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
