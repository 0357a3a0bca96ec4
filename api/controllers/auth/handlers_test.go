package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/internal/auth"
	"github.com/openfoodnetwork/ofn-backend/internal/users"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

type stubAuthService struct {
	loginReq      auth.LoginRequest
	refreshAccess string
	refreshToken  string
	loggedOut     string
	err           error
}

func (s *stubAuthService) Login(_ context.Context, req auth.LoginRequest) (*auth.TokenResponse, error) {
	s.loginReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &auth.TokenResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (s *stubAuthService) Refresh(_ context.Context, access, refresh string) (*auth.TokenResponse, error) {
	s.refreshAccess, s.refreshToken = access, refresh
	return &auth.TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (s *stubAuthService) Logout(_ context.Context, access string) error {
	s.loggedOut = access
	return nil
}

type stubRegister struct {
	err error
}

func (s stubRegister) Register(_ context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{Email: req.Email}, nil
}

func TestLogin(t *testing.T) {
	svc := &stubAuthService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"jo@example.com","password":"pw"}`))
	Login(svc, nil)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jo@example.com", svc.loginReq.Email)
	assert.Contains(t, rec.Body.String(), `"access_token":"access"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"not-an-email"}`))
	Login(svc, nil)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"jo@example.com","password":"bad"}`))
	Login(svc, nil)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestRegisterSignsIn(t *testing.T) {
	svc := &stubAuthService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"jo@example.com","password":"long enough"}`))
	Register(stubRegister{}, svc, nil)(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "long enough", svc.loginReq.Password)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"jo@example.com","password":"long enough"}`))
	Register(stubRegister{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}, svc, nil)(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshAndLogoutUseBearer(t *testing.T) {
	svc := &stubAuthService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"r1"}`))
	req.Header.Set("Authorization", "Bearer old-access")
	Refresh(svc, nil)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old-access", svc.refreshAccess)
	assert.Equal(t, "r1", svc.refreshToken)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"r1"}`))
	Refresh(svc, nil)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer old-access")
	Logout(svc, nil)(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "old-access", svc.loggedOut)
}
