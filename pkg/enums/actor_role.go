package enums

import "fmt"

// ActorRole is the authorization role carried in access tokens.
type ActorRole string

const (
	ActorRoleUser  ActorRole = "user"
	ActorRoleAdmin ActorRole = "admin"
)

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	return r == ActorRoleUser || r == ActorRoleAdmin
}

func ParseActorRole(value string) (ActorRole, error) {
	switch ActorRole(value) {
	case ActorRoleUser:
		return ActorRoleUser, nil
	case ActorRoleAdmin:
		return ActorRoleAdmin, nil
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
