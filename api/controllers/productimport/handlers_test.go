package productimport

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	importsvc "github.com/openfoodnetwork/ofn-backend/internal/productimport"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

type stubService struct {
	importsvc.Service
	body     string
	settings importsvc.Settings
	imported bool
}

func (s *stubService) run(file io.Reader, settings importsvc.Settings) (*importsvc.Report, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	s.body, s.settings = string(raw), settings
	errs := pkgerrors.FieldErrors{}
	errs.Add("price", "must be a number")
	return &importsvc.Report{
		Entries: []importsvc.Entry{
			{Line: 2, Name: "Carrots", Status: enums.ImportNewProduct},
			{Line: 3, Name: "Beets", Status: enums.ImportInvalid, Errors: errs},
		},
		Counts: importsvc.Counts{ProductsCreated: 1, Invalid: 1},
	}, nil
}

func (s *stubService) Validate(_ context.Context, _ uuid.UUID, file io.Reader, settings importsvc.Settings) (*importsvc.Report, error) {
	return s.run(file, settings)
}

func (s *stubService) Import(_ context.Context, _ uuid.UUID, file io.Reader, settings importsvc.Settings) (*importsvc.Report, error) {
	s.imported = true
	return s.run(file, settings)
}

func upload(t *testing.T, csv, settings string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if csv != "" {
		part, err := mw.CreateFormFile(fileField, "products.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(csv))
		require.NoError(t, err)
	}
	if settings != "" {
		require.NoError(t, mw.WriteField(settingsField, settings))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/product-import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(middleware.WithUser(req.Context(), uuid.New()))
}

func TestImportPassesFileAndSettings(t *testing.T) {
	svc := &stubService{}
	hub := uuid.New()
	settings := `{"import_into":"inventories","enterprises":{"` + hub.String() + `":{"reset_all_absent":true,"defaults":{"on_hand":{"mode":"overwrite_all","value":"0"}}}}}`

	rec := httptest.NewRecorder()
	Import(svc, config.ImportConfig{MaxUploadMB: 1}, nil)(rec, upload(t, "name,supplier\n", settings))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.imported)
	assert.Equal(t, "name,supplier\n", svc.body)
	assert.Equal(t, enums.ImportTargetInventories, svc.settings.ImportInto)
	require.Contains(t, svc.settings.Enterprises, hub)
	assert.True(t, svc.settings.Enterprises[hub].ResetAllAbsent)
	assert.Equal(t, enums.ImportDefaultOverwriteAll, svc.settings.Enterprises[hub].Defaults["on_hand"].Mode)

	body := rec.Body.String()
	assert.Contains(t, body, `"products_created":1`)
	assert.Contains(t, body, `"status":"invalid"`)
	assert.Contains(t, body, `"price":["must be a number"]`)
}

func TestValidateWithoutSettings(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	Validate(svc, config.ImportConfig{MaxUploadMB: 1}, nil)(rec, upload(t, "name\n", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.imported)
	assert.Equal(t, importsvc.Settings{}, svc.settings)
}

func TestRejectsBadUploads(t *testing.T) {
	svc := &stubService{}
	cfg := config.ImportConfig{MaxUploadMB: 1}

	rec := httptest.NewRecorder()
	Import(svc, cfg, nil)(rec, upload(t, "", `{"import_into":"inventories"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	Import(svc, cfg, nil)(rec, upload(t, "name\n", `{"import_into":"catalogue"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	Import(svc, cfg, nil)(rec, upload(t, "name\n", `{"unknown":true}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	Import(svc, cfg, nil)(rec, upload(t, string(bytes.Repeat([]byte("a"), 2<<20)), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, svc.imported)
}
