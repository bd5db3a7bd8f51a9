package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/vetconnect/internal/handlers"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/services"
	"github.com/BradenHooton/vetconnect/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfile_PartialFields(t *testing.T) {
	var got *models.ProfileUpdate
	svc := &MockProfileService{
		UpdateFunc: func(_ context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error) {
			got = upd
			return &models.Profile{UserID: userID, FullName: *upd.FullName}, nil
		},
	}

	name := "Dr. Amina Bello"
	req := NewTestRequest(t, http.MethodPut, "/profile", handlers.UpdateProfileRequest{FullName: &name})
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(svc, testUploadLimit, discardLogger()).Update(w, req)

	var profile models.Profile
	AssertJSONResponse(t, w, http.StatusOK, &profile)
	assert.Equal(t, name, profile.FullName)
	require.NotNil(t, got)
	assert.Nil(t, got.Bio)
	assert.Nil(t, got.Latitude)
}

func TestUploadProfileImage(t *testing.T) {
	var gotFile storage.File
	svc := &MockProfileService{
		UploadImageFunc: func(_ context.Context, userID string, file storage.File) (*models.Profile, error) {
			gotFile = file
			url := "https://cdn.example.com/signed/avatar.png"
			return &models.Profile{UserID: userID, ProfileImageURL: &url}, nil
		},
	}

	req := NewMultipartRequest(t, "/profile/image", nil, "image", map[string][]byte{"avatar.png": []byte("png-bytes")})
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(svc, testUploadLimit, discardLogger()).UploadImage(w, req)

	AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "avatar.png", gotFile.Name)
	assert.Equal(t, []byte("png-bytes"), gotFile.Data)
}

func TestUploadProfileImage_MissingFile(t *testing.T) {
	req := NewMultipartRequest(t, "/profile/image", map[string]string{"note": "x"}, "image", nil)
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(&MockProfileService{}, testUploadLimit, discardLogger()).UploadImage(w, req)

	resp := AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Equal(t, `a file is required in the "image" field`, resp.Message)
}

func TestUploadProfileImage_TooManyFiles(t *testing.T) {
	req := NewMultipartRequest(t, "/profile/image", nil, "image", map[string][]byte{
		"a.png": []byte("a"),
		"b.png": []byte("b"),
	})
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(&MockProfileService{}, testUploadLimit, discardLogger()).UploadImage(w, req)

	resp := AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Equal(t, "maximum 1 files allowed", resp.Message)
}

func TestUploadProfileImage_OversizedBodyRejectedBeforeParsing(t *testing.T) {
	called := false
	svc := &MockProfileService{
		UploadImageFunc: func(context.Context, string, storage.File) (*models.Profile, error) {
			called = true
			return nil, nil
		},
	}

	huge := make([]byte, 3*testUploadLimit)
	req := NewMultipartRequest(t, "/profile/image", nil, "image", map[string][]byte{"huge.png": huge})
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(svc, testUploadLimit, discardLogger()).UploadImage(w, req)

	AssertErrorResponse(t, w, http.StatusRequestEntityTooLarge, "payload_too_large")
	assert.False(t, called)
}

func TestUploadProfileImage_PartIsTruncatedAtLimit(t *testing.T) {
	var gotLen int
	svc := &MockProfileService{
		UploadImageFunc: func(_ context.Context, _ string, file storage.File) (*models.Profile, error) {
			gotLen = len(file.Data)
			return nil, &services.UploadRejectedError{Errors: []storage.FileError{{Name: file.Name, Message: "file exceeds 16 bytes"}}}
		},
	}

	big := make([]byte, 64)
	req := NewMultipartRequest(t, "/profile/image", nil, "image", map[string][]byte{"big.png": big})
	req = WithAuthContext(req, "vet-1", models.RoleVeterinarian)
	w := httptest.NewRecorder()
	handlers.NewProfileHandler(svc, 16, discardLogger()).UploadImage(w, req)

	assert.Equal(t, 17, gotLen)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAnimal(t *testing.T) {
	svc := &MockAnimalService{
		CreateFunc: func(_ context.Context, ownerID string, in services.AnimalInput) (*models.Animal, error) {
			return &models.Animal{ID: "animal-1", OwnerID: ownerID, AnimalType: in.AnimalType}, nil
		},
	}

	req := NewTestRequest(t, http.MethodPost, "/animals", handlers.AnimalRequest{AnimalType: "goat"})
	req = WithAuthContext(req, "farmer-1", models.RoleFarmer)
	w := httptest.NewRecorder()
	handlers.NewAnimalHandler(svc, testUploadLimit, discardLogger()).Create(w, req)

	var animal models.Animal
	AssertJSONResponse(t, w, http.StatusCreated, &animal)
	assert.Equal(t, "farmer-1", animal.OwnerID)
	assert.Equal(t, "goat", animal.AnimalType)
}

func TestCreateAnimal_MissingType(t *testing.T) {
	req := NewTestRequest(t, http.MethodPost, "/animals", handlers.AnimalRequest{})
	req = WithAuthContext(req, "farmer-1", models.RoleFarmer)
	w := httptest.NewRecorder()
	handlers.NewAnimalHandler(&MockAnimalService{}, testUploadLimit, discardLogger()).Create(w, req)

	resp := AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Equal(t, "animal_type is required", resp.Message)
}

func TestDeleteAnimal_NotOwner(t *testing.T) {
	svc := &MockAnimalService{
		DeleteFunc: func(context.Context, string, string) error { return models.ErrNotFound },
	}

	req := httptest.NewRequest(http.MethodDelete, "/animals/animal-1", nil)
	req = WithURLParam(WithAuthContext(req, "someone-else", models.RoleFarmer), "id", "animal-1")
	w := httptest.NewRecorder()
	handlers.NewAnimalHandler(svc, testUploadLimit, discardLogger()).Delete(w, req)

	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}
