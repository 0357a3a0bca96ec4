// Package productimport exposes the CSV product and inventory upload.
package productimport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	importsvc "github.com/openfoodnetwork/ofn-backend/internal/productimport"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

const (
	fileField     = "file"
	settingsField = "settings"
)

type defaultRequest struct {
	Mode  enums.ImportDefaultMode `json:"mode"`
	Value string                  `json:"value"`
}

type enterpriseSettingsRequest struct {
	ResetAllAbsent bool                      `json:"reset_all_absent"`
	Defaults       map[string]defaultRequest `json:"defaults"`
}

type settingsRequest struct {
	ImportInto  enums.ImportTarget                      `json:"import_into"`
	Enterprises map[uuid.UUID]enterpriseSettingsRequest `json:"enterprises"`
}

func (req settingsRequest) toSettings() importsvc.Settings {
	out := importsvc.Settings{ImportInto: req.ImportInto}
	if len(req.Enterprises) == 0 {
		return out
	}
	out.Enterprises = make(map[uuid.UUID]importsvc.EnterpriseSettings, len(req.Enterprises))
	for id, es := range req.Enterprises {
		defaults := make(map[string]importsvc.Default, len(es.Defaults))
		for field, d := range es.Defaults {
			defaults[field] = importsvc.Default{Mode: d.Mode, Value: d.Value}
		}
		out.Enterprises[id] = importsvc.EnterpriseSettings{ResetAllAbsent: es.ResetAllAbsent, Defaults: defaults}
	}
	return out
}

type entryResponse struct {
	Line        int                     `json:"line"`
	Name        string                  `json:"name"`
	Supplier    string                  `json:"supplier,omitempty"`
	Producer    string                  `json:"producer,omitempty"`
	DisplayName string                  `json:"display_name,omitempty"`
	Status      enums.ImportEntryStatus `json:"status"`
	Errors      pkgerrors.FieldErrors   `json:"errors,omitempty"`
	ProductID   *uuid.UUID              `json:"product_id,omitempty"`
	VariantID   *uuid.UUID              `json:"variant_id,omitempty"`
}

type reportResponse struct {
	Entries []entryResponse  `json:"entries"`
	Counts  importsvc.Counts `json:"counts"`
}

func newReportResponse(report *importsvc.Report) reportResponse {
	out := reportResponse{Entries: make([]entryResponse, 0, len(report.Entries)), Counts: report.Counts}
	for _, e := range report.Entries {
		resp := entryResponse{
			Line:        e.Line,
			Name:        e.Name,
			Supplier:    e.Supplier,
			Producer:    e.Producer,
			DisplayName: e.DisplayName,
			Status:      e.Status,
			ProductID:   e.ProductID,
			VariantID:   e.VariantID,
		}
		if !e.Errors.Empty() {
			resp.Errors = e.Errors
		}
		out.Entries = append(out.Entries, resp)
	}
	return out
}

type runFunc func(r *http.Request, userID uuid.UUID, file io.Reader, settings importsvc.Settings) (*importsvc.Report, error)

// Validate dry-runs an upload and reports what each row would do.
func Validate(svc importsvc.Service, cfg config.ImportConfig, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, cfg, logg, func(r *http.Request, userID uuid.UUID, file io.Reader, settings importsvc.Settings) (*importsvc.Report, error) {
		return svc.Validate(r.Context(), userID, file, settings)
	})
}

// Import saves every valid row of an upload.
func Import(svc importsvc.Service, cfg config.ImportConfig, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, cfg, logg, func(r *http.Request, userID uuid.UUID, file io.Reader, settings importsvc.Settings) (*importsvc.Report, error) {
		return svc.Import(r.Context(), userID, file, settings)
	})
}

func handle(svc importsvc.Service, cfg config.ImportConfig, logg *logger.Logger, run runFunc) http.HandlerFunc {
	maxBytes := int64(cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product import unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "upload too large").WithDetails(map[string]any{"max_bytes": maxBytes}))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expected a multipart upload"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		settings, err := parseSettings(r.FormValue(settingsField))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		file, _, err := r.FormFile(fileField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "csv file is required").WithDetails(map[string]any{"field": fileField}))
			return
		}
		defer file.Close()

		report, err := run(r, userID, file, settings)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReportResponse(report))
	}
}

func parseSettings(raw string) (importsvc.Settings, error) {
	if strings.TrimSpace(raw) == "" {
		return importsvc.Settings{}, nil
	}
	var req settingsRequest
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return importsvc.Settings{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid import settings").WithDetails(map[string]any{"field": settingsField})
	}
	settings := req.toSettings()
	if err := settings.Validate(); err != nil {
		return importsvc.Settings{}, err
	}
	return settings, nil
}
