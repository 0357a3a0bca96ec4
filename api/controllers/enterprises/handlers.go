// Package enterprises exposes enterprise profile and manager endpoints.
package enterprises

import (
	"net/http"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	entsvc "github.com/openfoodnetwork/ofn-backend/internal/enterprises"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type createRequest struct {
	Name              string                `json:"name" validate:"required,max=255"`
	Permalink         string                `json:"permalink" validate:"omitempty,max=255"`
	Sells             enums.EnterpriseSells `json:"sells"`
	IsPrimaryProducer bool                  `json:"is_primary_producer"`
}

type updateRequest struct {
	Name              *string                `json:"name" validate:"omitempty,max=255"`
	Permalink         *string                `json:"permalink" validate:"omitempty,max=255"`
	Sells             *enums.EnterpriseSells `json:"sells"`
	IsPrimaryProducer *bool                  `json:"is_primary_producer"`
}

type addManagerRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enterprise service unavailable"))
}

func Create(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), userID, entsvc.CreateInput{
			Name:              body.Name,
			Permalink:         body.Permalink,
			Sells:             body.Sells,
			IsPrimaryProducer: body.IsPrimaryProducer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListManaged returns the enterprises the caller manages.
func ListManaged(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListManaged(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Get(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.URLParamUUID(r, "enterpriseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ent, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ent)
	}
}

func Update(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "enterpriseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), userID, id, entsvc.UpdateInput{
			Name:              body.Name,
			Permalink:         body.Permalink,
			Sells:             body.Sells,
			IsPrimaryProducer: body.IsPrimaryProducer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func ListManagers(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "enterpriseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		managers, err := svc.ListManagers(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, managers)
	}
}

// AddManager grants an existing user management of the enterprise.
func AddManager(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "enterpriseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addManagerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		manager, err := svc.AddManager(r.Context(), userID, id, body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, manager)
	}
}

func RemoveManager(svc entsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "enterpriseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		managerID, err := validators.URLParamUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveManager(r.Context(), userID, id, managerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
