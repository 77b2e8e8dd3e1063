package models

type UserRole string

const (
	RoleMember      UserRole = "member"
	RoleCoordinator UserRole = "coordinator"
	RoleAdmin       UserRole = "admin"
)

var roleRank = map[UserRole]int{
	RoleMember:      1,
	RoleCoordinator: 2,
	RoleAdmin:       3,
}

func IsValidRole(r UserRole) bool {
	_, ok := roleRank[r]
	return ok
}

// HasAtLeast reports whether any of roles ranks at or above required.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	for _, r := range roles {
		if roleRank[r] >= roleRank[required] {
			return true
		}
	}
	return false
}

// User is read from the surrounding application; this service never writes it.
type User struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`
}
