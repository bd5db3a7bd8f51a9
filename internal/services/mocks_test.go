package services

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock drives both the limiter and the services under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.NewMemoryStore(clock), clock, discardLogger())
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.User, error)
	CreateWithProfileFunc func(ctx context.Context, user *models.User, fullName string) (*models.User, *models.Profile, error)
	UpdateFunc            func(ctx context.Context, id string, user *models.User) (*models.User, error)
	SetMFAEnabledFunc     func(ctx context.Context, id string, enabled bool) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) CreateWithProfile(ctx context.Context, user *models.User, fullName string) (*models.User, *models.Profile, error) {
	if m.CreateWithProfileFunc != nil {
		return m.CreateWithProfileFunc(ctx, user, fullName)
	}
	return nil, nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return user, nil
}

func (m *MockUserRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	if m.SetMFAEnabledFunc != nil {
		return m.SetMFAEnabledFunc(ctx, id, enabled)
	}
	return nil
}

// MockProfileRepository implements ProfileRepository for testing
type MockProfileRepository struct {
	GetByUserIDFunc  func(ctx context.Context, userID string) (*models.Profile, error)
	GetByUserIDsFunc func(ctx context.Context, userIDs []string) ([]*models.Profile, error)
	UpdateFunc       func(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error)
	SetImageURLFunc  func(ctx context.Context, userID, url string) (*models.Profile, error)
	ListVetsFunc     func(ctx context.Context) ([]*models.Profile, error)
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileRepository) GetByUserIDs(ctx context.Context, userIDs []string) ([]*models.Profile, error) {
	if m.GetByUserIDsFunc != nil {
		return m.GetByUserIDsFunc(ctx, userIDs)
	}
	return nil, nil
}

func (m *MockProfileRepository) Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, userID, upd)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileRepository) SetImageURL(ctx context.Context, userID, url string) (*models.Profile, error) {
	if m.SetImageURLFunc != nil {
		return m.SetImageURLFunc(ctx, userID, url)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileRepository) ListVets(ctx context.Context) ([]*models.Profile, error) {
	if m.ListVetsFunc != nil {
		return m.ListVetsFunc(ctx)
	}
	return nil, nil
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	mu      sync.Mutex
	revoked map[string]string

	RevokeAllUserTokensFunc func(ctx context.Context, userID, reason string, until time.Time) error
}

func (m *MockTokenRevocationRepository) RevokeToken(_ context.Context, jti, _, _ string, _ time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revoked == nil {
		m.revoked = make(map[string]string)
	}
	m.revoked[jti] = reason
	return nil
}

func (m *MockTokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID, reason string, until time.Time) error {
	if m.RevokeAllUserTokensFunc != nil {
		return m.RevokeAllUserTokensFunc(ctx, userID, reason, until)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

// MockEmailOTPRepository keeps codes in memory
type MockEmailOTPRepository struct {
	codes []*models.EmailOTP
	clock *fakeClock
}

func (m *MockEmailOTPRepository) Create(_ context.Context, otp *models.EmailOTP) error {
	otp.ID = "otp-" + strconv.Itoa(len(m.codes)+1)
	m.codes = append(m.codes, otp)
	return nil
}

func (m *MockEmailOTPRepository) GetLatest(_ context.Context, email string) (*models.EmailOTP, error) {
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].Email == email {
			return m.codes[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailOTPRepository) IncrementAttempts(_ context.Context, id string) error {
	for _, otp := range m.codes {
		if otp.ID == id {
			otp.Attempts++
		}
	}
	return nil
}

func (m *MockEmailOTPRepository) Consume(_ context.Context, id string) error {
	for _, otp := range m.codes {
		if otp.ID == id {
			if otp.ConsumedAt != nil {
				return models.ErrNotFound
			}
			now := m.clock.Now()
			otp.ConsumedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

// MockOTPSender captures the last code sent
type MockOTPSender struct {
	Sent     int
	LastTo   string
	LastCode string
	Err      error
}

func (m *MockOTPSender) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent++
	m.LastTo = email
	m.LastCode = code
	return nil
}

// MockMFAFactorRepository keeps factors and challenges in memory
type MockMFAFactorRepository struct {
	mu         sync.Mutex
	factors    map[string]*models.MFAFactor
	challenges map[string]*models.MFAChallenge
	seq        int
}

func NewMockMFAFactorRepository() *MockMFAFactorRepository {
	return &MockMFAFactorRepository{
		factors:    make(map[string]*models.MFAFactor),
		challenges: make(map[string]*models.MFAChallenge),
	}
}

func (m *MockMFAFactorRepository) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

func (m *MockMFAFactorRepository) Create(_ context.Context, factor *models.MFAFactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	factor.ID = m.nextID("factor")
	if factor.Status == "" {
		factor.Status = models.FactorStatusUnverified
	}
	cp := *factor
	m.factors[factor.ID] = &cp
	return nil
}

func (m *MockMFAFactorRepository) GetByID(_ context.Context, userID, factorID string) (*models.MFAFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factors[factorID]
	if !ok || f.UserID != userID {
		return nil, models.ErrMFAFactorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MockMFAFactorRepository) ListByUserID(_ context.Context, userID string) ([]models.MFAFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MFAFactor
	for _, f := range m.factors {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *MockMFAFactorRepository) MarkVerified(_ context.Context, factorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factors[factorID]
	if !ok {
		return models.ErrMFAFactorNotFound
	}
	f.Status = models.FactorStatusVerified
	return nil
}

func (m *MockMFAFactorRepository) UpdateLastUsedAt(_ context.Context, factorID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.factors[factorID]; ok {
		f.LastUsedAt = &usedAt
	}
	return nil
}

func (m *MockMFAFactorRepository) Delete(_ context.Context, userID, factorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factors[factorID]
	if !ok || f.UserID != userID {
		return models.ErrMFAFactorNotFound
	}
	delete(m.factors, factorID)
	return nil
}

func (m *MockMFAFactorRepository) CountVerified(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.factors {
		if f.UserID == userID && f.IsVerified() {
			n++
		}
	}
	return n, nil
}

func (m *MockMFAFactorRepository) CreateChallenge(_ context.Context, challenge *models.MFAChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge.ID = m.nextID("challenge")
	cp := *challenge
	m.challenges[challenge.ID] = &cp
	return nil
}

func (m *MockMFAFactorRepository) GetChallenge(_ context.Context, challengeID string) (*models.MFAChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return nil, models.ErrMFAChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockMFAFactorRepository) MarkChallengeVerified(_ context.Context, challengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok || c.VerifiedAt != nil {
		return models.ErrMFAChallengeNotFound
	}
	now := time.Now()
	c.VerifiedAt = &now
	return nil
}

func (m *MockMFAFactorRepository) DeleteExpiredChallenges(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.challenges {
		if c.ExpiresAt.Before(before) {
			delete(m.challenges, id)
			n++
		}
	}
	return n, nil
}

// fakeTOTP accepts a single fixed code and treats a code used at or after
// lastUsedAt as replayed
type fakeTOTP struct {
	validCode string
}

func (f *fakeTOTP) Enroll(accountEmail string) (*auth.TOTPEnrollment, error) {
	return &auth.TOTPEnrollment{
		Secret:          "JBSWY3DPEHPK3PXP",
		SecretEncrypted: []byte("encrypted"),
		SecretNonce:     []byte("nonce"),
		URI:             "otpauth://totp/VetConnect:" + accountEmail,
		QRCode:          "data:image/png;base64,AAAA",
	}, nil
}

func (f *fakeTOTP) DecryptSecret(encryptedBytes, _ []byte) ([]byte, error) {
	return encryptedBytes, nil
}

func (f *fakeTOTP) ValidateTOTP(_ []byte, code string, lastUsedAt *time.Time) (bool, error) {
	if code != f.validCode {
		return false, nil
	}
	if lastUsedAt != nil {
		return false, models.ErrMFACodeReplayed
	}
	return true, nil
}

// MockAnimalRepository implements AnimalRepository for testing
type MockAnimalRepository struct {
	ListByOwnerFunc  func(ctx context.Context, ownerID string) ([]*models.Animal, error)
	GetByIDFunc      func(ctx context.Context, ownerID, id string) (*models.Animal, error)
	CountByOwnerFunc func(ctx context.Context, ownerID string) (int, error)
	CreateFunc       func(ctx context.Context, a *models.Animal) (*models.Animal, error)
	UpdateFunc       func(ctx context.Context, a *models.Animal) (*models.Animal, error)
	DeleteFunc       func(ctx context.Context, ownerID, id string) error
}

func (m *MockAnimalRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Animal, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *MockAnimalRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Animal, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, ownerID, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAnimalRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	if m.CountByOwnerFunc != nil {
		return m.CountByOwnerFunc(ctx, ownerID)
	}
	return 0, nil
}

func (m *MockAnimalRepository) Create(ctx context.Context, a *models.Animal) (*models.Animal, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	a.ID = "animal-1"
	return a, nil
}

func (m *MockAnimalRepository) Update(ctx context.Context, a *models.Animal) (*models.Animal, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, a)
	}
	return a, nil
}

func (m *MockAnimalRepository) Delete(ctx context.Context, ownerID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, ownerID, id)
	}
	return nil
}

// MockPortfolioRepository implements PortfolioRepository for testing
type MockPortfolioRepository struct {
	ListByVetFunc func(ctx context.Context, vetID string) ([]*models.PortfolioItem, error)
	GetByIDFunc   func(ctx context.Context, vetID, id string) (*models.PortfolioItem, error)
	CreateFunc    func(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error)
	UpdateFunc    func(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error)
	DeleteFunc    func(ctx context.Context, vetID, id string) error
}

func (m *MockPortfolioRepository) ListByVet(ctx context.Context, vetID string) ([]*models.PortfolioItem, error) {
	if m.ListByVetFunc != nil {
		return m.ListByVetFunc(ctx, vetID)
	}
	return nil, nil
}

func (m *MockPortfolioRepository) GetByID(ctx context.Context, vetID, id string) (*models.PortfolioItem, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, vetID, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockPortfolioRepository) Create(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	p.ID = "item-1"
	return p, nil
}

func (m *MockPortfolioRepository) Update(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	return p, nil
}

func (m *MockPortfolioRepository) Delete(ctx context.Context, vetID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, vetID, id)
	}
	return nil
}

// MockConsultationRepository keeps consultations in memory. Accept and
// Update fail with ErrInvalidTransition when the row no longer matches.
type MockConsultationRepository struct {
	mu    sync.Mutex
	items map[string]*models.Consultation
	seq   int
	clock *fakeClock

	touched []string
}

func NewMockConsultationRepository(clock *fakeClock) *MockConsultationRepository {
	return &MockConsultationRepository{items: make(map[string]*models.Consultation), clock: clock}
}

func (m *MockConsultationRepository) put(c *models.Consultation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.items[c.ID] = &cp
}

func (m *MockConsultationRepository) Create(_ context.Context, c *models.Consultation) (*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = "consultation-" + strconv.Itoa(m.seq)
	if c.Status == "" {
		c.Status = models.ConsultationPending
	}
	c.CreatedAt = m.clock.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.items[c.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MockConsultationRepository) GetByID(_ context.Context, id string) (*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockConsultationRepository) ListForUser(_ context.Context, userID string, _ int) ([]*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Consultation
	for _, c := range m.items {
		if c.IsParticipant(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockConsultationRepository) ListPending(_ context.Context, _ int) ([]*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Consultation
	for _, c := range m.items {
		if c.Status == models.ConsultationPending && c.VetID == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockConsultationRepository) Accept(_ context.Context, id, vetID string) (*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok || c.Status != models.ConsultationPending || c.VetID != nil {
		return nil, models.ErrInvalidTransition
	}
	c.VetID = &vetID
	c.Status = models.ConsultationInProgress
	c.UpdatedAt = m.clock.Now()
	cp := *c
	return &cp, nil
}

func (m *MockConsultationRepository) Update(_ context.Context, c *models.Consultation, fromStatus string) (*models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[c.ID]
	if !ok || current.Status != fromStatus {
		return nil, models.ErrInvalidTransition
	}
	cp := *c
	cp.UpdatedAt = m.clock.Now()
	m.items[c.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MockConsultationRepository) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	if c, ok := m.items[id]; ok {
		c.UpdatedAt = m.clock.Now()
	}
	return nil
}

func (m *MockConsultationRepository) CountByStatus(_ context.Context, userID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, c := range m.items {
		if c.IsParticipant(userID) {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func (m *MockConsultationRepository) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.items {
		if c.Status == models.ConsultationPending && c.VetID == nil {
			n++
		}
	}
	return n, nil
}

// MockMessageRepository keeps messages in insertion order
type MockMessageRepository struct {
	mu       sync.Mutex
	messages []*models.Message
	clock    *fakeClock
}

func (m *MockMessageRepository) ListByConsultation(_ context.Context, consultationID string) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConsultationID == consultationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MockMessageRepository) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = "message-" + strconv.Itoa(len(m.messages)+1)
	msg.CreatedAt = m.clock.Now()
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *MockMessageRepository) LatestByConsultations(_ context.Context, ids []string) (map[string]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.Message)
	for _, msg := range m.messages {
		for _, id := range ids {
			if msg.ConsultationID == id {
				out[id] = msg
			}
		}
	}
	return out, nil
}

// fakeImages records uploads and signs paths with a fixed prefix
type fakeImages struct {
	mu       sync.Mutex
	uploaded []string
	removed  []string
	reject   bool
	signErr  error
}

func (f *fakeImages) Upload(_ context.Context, purpose storage.Purpose, folder string, files []storage.File, maxFiles int) (*storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(files) > maxFiles {
		return nil, storage.ErrTooManyFiles
	}
	result := &storage.UploadResult{}
	for _, file := range files {
		if f.reject {
			result.Errors = append(result.Errors, storage.FileError{Name: file.Name, Message: file.Name + " must be JPEG, PNG, or WebP"})
			continue
		}
		path := folder + "/" + file.Name
		f.uploaded = append(f.uploaded, path)
		result.Uploaded = append(result.Uploaded, storage.Object{Name: file.Name, Path: path})
	}
	return result, nil
}

func (f *fakeImages) SignedURL(_ context.Context, purpose storage.Purpose, path string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example/" + string(purpose) + "/" + path, nil
}

func (f *fakeImages) Remove(_ context.Context, _ storage.Purpose, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
