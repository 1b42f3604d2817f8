package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// AccessTokenPayload is what callers provide when minting a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims is the JWT claim set carried by access tokens.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"uid"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
