package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

// principal is the caller established by Auth. Admin rights are not carried
// here; services read them from the database per request.
type principal struct {
	userID uuid.UUID
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	if ctx == nil {
		return principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok && p.userID != uuid.Nil
}

// WithUser attaches the authenticated caller to ctx.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, principal{userID: userID})
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := principalFrom(ctx)
	return p.userID, ok
}

// RequireUserID returns the caller or an unauthorized error for anonymous
// requests.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	if id, ok := UserIDFromContext(ctx); ok {
		return id, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}
