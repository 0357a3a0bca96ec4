// Package permissions exposes grants along enterprise relationships.
package permissions

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	permsvc "github.com/openfoodnetwork/ofn-backend/internal/permissions"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type changeFunc func(svc permsvc.Service, r *http.Request, input permsvc.ChangePermissionInput) error

// Grant adds a permission from the parent enterprise to the child.
func Grant(svc permsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(svc permsvc.Service, r *http.Request, input permsvc.ChangePermissionInput) error {
		return svc.GrantPermission(r.Context(), input)
	})
}

// Revoke removes a permission. Revoking create_variant_overrides also
// retires the child's overrides of the parent's variants.
func Revoke(svc permsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(svc permsvc.Service, r *http.Request, input permsvc.ChangePermissionInput) error {
		return svc.RevokePermission(r.Context(), input)
	})
}

func handle(svc permsvc.Service, logg *logger.Logger, change changeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "permission service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parentID, err := validators.URLParamUUID(r, "parentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		childID, err := validators.URLParamUUID(r, "childId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		permission, err := enums.ParseEnterprisePermission(chi.URLParam(r, "permission"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown permission").WithDetails(map[string]any{"field": "permission"}))
			return
		}

		input := permsvc.ChangePermissionInput{
			ActorUserID: userID,
			ParentID:    parentID,
			ChildID:     childID,
			Permission:  permission,
		}
		if err := change(svc, r, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
