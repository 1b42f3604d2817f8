package authcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/api/middleware"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

// ResolveUserID returns the authenticated user's id from the request context.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id claim")
	}
	return id, nil
}

// ResolveActor returns the authenticated user as an event actor reference.
func ResolveActor(r *http.Request) (*outbox.ActorRef, error) {
	userID, err := ResolveUserID(r)
	if err != nil {
		return nil, err
	}
	role := middleware.RoleFromContext(r.Context())
	if role == "" {
		role = string(enums.ActorRoleUser)
	}
	return &outbox.ActorRef{UserID: userID, Role: role}, nil
}
