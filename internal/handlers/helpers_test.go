package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/services"
	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewMultipartRequest builds a multipart/form-data request with text fields
// and file parts under fileField
func NewMultipartRequest(t *testing.T, url string, fields map[string]string, fileField string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		part, err := mw.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// WithAuthContext adds access-token claims to the request context
func WithAuthContext(req *http.Request, userID, role string) *http.Request {
	return withClaims(req, &models.TokenClaims{UserID: userID, Role: role, Type: models.TokenTypeAccess})
}

func withClaims(req *http.Request, claims *models.TokenClaims) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam sets a chi route parameter as the router would
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and
// returns it for further assertions
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements handlers.AuthServiceInterface
type MockAuthService struct {
	RegisterFunc        func(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error)
	LoginFunc           func(ctx context.Context, email, password, ipAddress string) (*services.AuthResponse, error)
	RequestOTPFunc      func(ctx context.Context, email string) error
	VerifyOTPFunc       func(ctx context.Context, email, code string) (*services.AuthResponse, error)
	CompleteMFAFunc     func(ctx context.Context, userID string) (*services.AuthResponse, error)
	RefreshTokenFunc    func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc          func(ctx context.Context, accessToken, refreshToken string) error
	LogoutAllFunc       func(ctx context.Context, userID string) error
	RateLimitStatusFunc func(ctx context.Context, email string) ratelimit.Status
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress)
}

func (m *MockAuthService) RequestOTP(ctx context.Context, email string) error {
	if m.RequestOTPFunc == nil {
		return nil
	}
	return m.RequestOTPFunc(ctx, email)
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, email, code string) (*services.AuthResponse, error) {
	if m.VerifyOTPFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.VerifyOTPFunc(ctx, email, code)
}

func (m *MockAuthService) CompleteMFA(ctx context.Context, userID string) (*services.AuthResponse, error) {
	if m.CompleteMFAFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.CompleteMFAFunc(ctx, userID)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accessToken, refreshToken)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

func (m *MockAuthService) RateLimitStatus(ctx context.Context, email string) ratelimit.Status {
	if m.RateLimitStatusFunc == nil {
		return ratelimit.Status{RemainingAttempts: 5}
	}
	return m.RateLimitStatusFunc(ctx, email)
}

// MockMFAService implements handlers.MFAServiceInterface
type MockMFAService struct {
	EnrollFunc       func(ctx context.Context, userID, friendlyName string) (*models.MFAEnrollment, error)
	ChallengeFunc    func(ctx context.Context, userID, factorID string) (*models.MFAChallenge, error)
	VerifyFunc       func(ctx context.Context, userID, factorID, challengeID, code string) error
	ListFactorsFunc  func(ctx context.Context, userID string) ([]models.MFAFactor, error)
	DeleteFactorFunc func(ctx context.Context, userID, factorID string) error
}

func (m *MockMFAService) Enroll(ctx context.Context, userID, friendlyName string) (*models.MFAEnrollment, error) {
	return m.EnrollFunc(ctx, userID, friendlyName)
}

func (m *MockMFAService) Challenge(ctx context.Context, userID, factorID string) (*models.MFAChallenge, error) {
	return m.ChallengeFunc(ctx, userID, factorID)
}

func (m *MockMFAService) Verify(ctx context.Context, userID, factorID, challengeID, code string) error {
	if m.VerifyFunc == nil {
		return nil
	}
	return m.VerifyFunc(ctx, userID, factorID, challengeID, code)
}

func (m *MockMFAService) ListFactors(ctx context.Context, userID string) ([]models.MFAFactor, error) {
	if m.ListFactorsFunc == nil {
		return []models.MFAFactor{}, nil
	}
	return m.ListFactorsFunc(ctx, userID)
}

func (m *MockMFAService) DeleteFactor(ctx context.Context, userID, factorID string) error {
	if m.DeleteFactorFunc == nil {
		return nil
	}
	return m.DeleteFactorFunc(ctx, userID, factorID)
}

// MockConsultationService implements handlers.ConsultationServiceInterface.
// Unset functions fail with ErrInternalServer.
type MockConsultationService struct {
	CreateFunc      func(ctx context.Context, caller services.Caller, in services.ConsultationInput, files []storage.File) (*services.ConsultationResult, error)
	ListFunc        func(ctx context.Context, caller services.Caller) ([]*models.Consultation, error)
	ListPendingFunc func(ctx context.Context, caller services.Caller) ([]*models.Consultation, error)
	GetFunc         func(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error)
	AcceptFunc      func(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error)
	UpdateFunc      func(ctx context.Context, caller services.Caller, id string, upd models.ConsultationUpdate) (*models.Consultation, error)
	DashboardFunc   func(ctx context.Context, caller services.Caller) (*models.DashboardSummary, error)
}

func (m *MockConsultationService) Create(ctx context.Context, caller services.Caller, in services.ConsultationInput, files []storage.File) (*services.ConsultationResult, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateFunc(ctx, caller, in, files)
}

func (m *MockConsultationService) List(ctx context.Context, caller services.Caller) ([]*models.Consultation, error) {
	if m.ListFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ListFunc(ctx, caller)
}

func (m *MockConsultationService) ListPending(ctx context.Context, caller services.Caller) ([]*models.Consultation, error) {
	if m.ListPendingFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ListPendingFunc(ctx, caller)
}

func (m *MockConsultationService) Get(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error) {
	if m.GetFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.GetFunc(ctx, caller, id)
}

func (m *MockConsultationService) Accept(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error) {
	if m.AcceptFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AcceptFunc(ctx, caller, id)
}

func (m *MockConsultationService) Update(ctx context.Context, caller services.Caller, id string, upd models.ConsultationUpdate) (*models.Consultation, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.UpdateFunc(ctx, caller, id, upd)
}

func (m *MockConsultationService) Dashboard(ctx context.Context, caller services.Caller) (*models.DashboardSummary, error) {
	if m.DashboardFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.DashboardFunc(ctx, caller)
}

// MockMessageService implements handlers.MessageServiceInterface
type MockMessageService struct {
	ListFunc  func(ctx context.Context, userID, consultationID string) ([]*models.Message, error)
	SendFunc  func(ctx context.Context, userID, consultationID, text string) (*models.Message, error)
	InboxFunc func(ctx context.Context, userID string) ([]*models.Conversation, error)
}

func (m *MockMessageService) List(ctx context.Context, userID, consultationID string) ([]*models.Message, error) {
	return m.ListFunc(ctx, userID, consultationID)
}

func (m *MockMessageService) Send(ctx context.Context, userID, consultationID, text string) (*models.Message, error) {
	return m.SendFunc(ctx, userID, consultationID, text)
}

func (m *MockMessageService) Inbox(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return m.InboxFunc(ctx, userID)
}

// MockVetService implements handlers.VetServiceInterface
type MockVetService struct {
	SearchFunc    func(ctx context.Context, q string) ([]models.PublicVet, error)
	OnlineFunc    func() []realtime.Presence
	GetFunc       func(ctx context.Context, userID string) (*services.VetDetail, error)
	GoOnlineFunc  func(ctx context.Context, userID string, lat, lng *float64) (*realtime.Presence, error)
	GoOfflineFunc func(ctx context.Context, userID string) error
}

func (m *MockVetService) Search(ctx context.Context, q string) ([]models.PublicVet, error) {
	return m.SearchFunc(ctx, q)
}

func (m *MockVetService) Online() []realtime.Presence {
	if m.OnlineFunc == nil {
		return []realtime.Presence{}
	}
	return m.OnlineFunc()
}

func (m *MockVetService) Get(ctx context.Context, userID string) (*services.VetDetail, error) {
	return m.GetFunc(ctx, userID)
}

func (m *MockVetService) GoOnline(ctx context.Context, userID string, lat, lng *float64) (*realtime.Presence, error) {
	return m.GoOnlineFunc(ctx, userID, lat, lng)
}

func (m *MockVetService) GoOffline(ctx context.Context, userID string) error {
	if m.GoOfflineFunc == nil {
		return nil
	}
	return m.GoOfflineFunc(ctx, userID)
}

// MockProfileService implements handlers.ProfileServiceInterface
type MockProfileService struct {
	GetFunc         func(ctx context.Context, userID string) (*models.Profile, error)
	UpdateFunc      func(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error)
	UploadImageFunc func(ctx context.Context, userID string, file storage.File) (*models.Profile, error)
}

func (m *MockProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return m.GetFunc(ctx, userID)
}

func (m *MockProfileService) Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error) {
	return m.UpdateFunc(ctx, userID, upd)
}

func (m *MockProfileService) UploadImage(ctx context.Context, userID string, file storage.File) (*models.Profile, error) {
	return m.UploadImageFunc(ctx, userID, file)
}

// MockAnimalService implements handlers.AnimalServiceInterface
type MockAnimalService struct {
	ListFunc        func(ctx context.Context, ownerID string) ([]*models.Animal, error)
	CreateFunc      func(ctx context.Context, ownerID string, in services.AnimalInput) (*models.Animal, error)
	UpdateFunc      func(ctx context.Context, ownerID, id string, in services.AnimalInput) (*models.Animal, error)
	DeleteFunc      func(ctx context.Context, ownerID, id string) error
	UploadImageFunc func(ctx context.Context, ownerID, id string, file storage.File) (*models.Animal, error)
}

func (m *MockAnimalService) List(ctx context.Context, ownerID string) ([]*models.Animal, error) {
	return m.ListFunc(ctx, ownerID)
}

func (m *MockAnimalService) Create(ctx context.Context, ownerID string, in services.AnimalInput) (*models.Animal, error) {
	return m.CreateFunc(ctx, ownerID, in)
}

func (m *MockAnimalService) Update(ctx context.Context, ownerID, id string, in services.AnimalInput) (*models.Animal, error) {
	return m.UpdateFunc(ctx, ownerID, id, in)
}

func (m *MockAnimalService) Delete(ctx context.Context, ownerID, id string) error {
	return m.DeleteFunc(ctx, ownerID, id)
}

func (m *MockAnimalService) UploadImage(ctx context.Context, ownerID, id string, file storage.File) (*models.Animal, error) {
	return m.UploadImageFunc(ctx, ownerID, id, file)
}

// MockPortfolioService implements handlers.PortfolioServiceInterface
type MockPortfolioService struct {
	ListFunc        func(ctx context.Context, vetID string) ([]*models.PortfolioItem, error)
	CreateFunc      func(ctx context.Context, vetID string, in services.PortfolioInput) (*models.PortfolioItem, error)
	UpdateFunc      func(ctx context.Context, vetID, id string, in services.PortfolioInput) (*models.PortfolioItem, error)
	DeleteFunc      func(ctx context.Context, vetID, id string) error
	UploadImageFunc func(ctx context.Context, vetID, id string, file storage.File) (*models.PortfolioItem, error)
}

func (m *MockPortfolioService) List(ctx context.Context, vetID string) ([]*models.PortfolioItem, error) {
	return m.ListFunc(ctx, vetID)
}

func (m *MockPortfolioService) Create(ctx context.Context, vetID string, in services.PortfolioInput) (*models.PortfolioItem, error) {
	return m.CreateFunc(ctx, vetID, in)
}

func (m *MockPortfolioService) Update(ctx context.Context, vetID, id string, in services.PortfolioInput) (*models.PortfolioItem, error) {
	return m.UpdateFunc(ctx, vetID, id, in)
}

func (m *MockPortfolioService) Delete(ctx context.Context, vetID, id string) error {
	return m.DeleteFunc(ctx, vetID, id)
}

func (m *MockPortfolioService) UploadImage(ctx context.Context, vetID, id string, file storage.File) (*models.PortfolioItem, error) {
	return m.UploadImageFunc(ctx, vetID, id, file)
}
