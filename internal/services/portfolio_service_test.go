package services

import (
	"context"
	"testing"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioService_Create(t *testing.T) {
	svc := NewPortfolioService(&MockPortfolioRepository{}, &fakeImages{}, discardLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, "vet-1", PortfolioInput{Title: " "})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	item, err := svc.Create(ctx, "vet-1", PortfolioInput{Title: " Caesarean in ewes ", Category: strPtr("surgery")})
	require.NoError(t, err)
	assert.Equal(t, "Caesarean in ewes", item.Title)
	assert.Equal(t, "vet-1", item.VetID)
	assert.Nil(t, item.ImageURL)
}

func TestPortfolioService_Update_OtherVetNotFound(t *testing.T) {
	svc := NewPortfolioService(&MockPortfolioRepository{}, &fakeImages{}, discardLogger())

	_, err := svc.Update(context.Background(), "vet-2", "item-1", PortfolioInput{Title: "Hijack"})

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPortfolioService_UploadImageAndDelete(t *testing.T) {
	images := &fakeImages{}
	item := &models.PortfolioItem{ID: "item-1", VetID: "vet-1", Title: "Bovine TB screening"}
	repo := &MockPortfolioRepository{
		GetByIDFunc: func(_ context.Context, vetID, id string) (*models.PortfolioItem, error) {
			if vetID != item.VetID || id != item.ID {
				return nil, models.ErrNotFound
			}
			cp := *item
			return &cp, nil
		},
		UpdateFunc: func(_ context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error) {
			cp := *p
			item = &cp
			return p, nil
		},
	}
	svc := NewPortfolioService(repo, images, discardLogger())
	ctx := context.Background()

	updated, err := svc.UploadImage(ctx, "vet-1", "item-1", storage.File{Name: "herd.jpg", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/portfolio-images/vet-1/herd.jpg", *updated.ImageURL)
	assert.Empty(t, images.removed)

	require.NoError(t, svc.Delete(ctx, "vet-1", "item-1"))
	assert.Equal(t, []string{"vet-1/herd.jpg"}, images.removed)
}
