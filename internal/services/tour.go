package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/trailtours/apiserver/internal/storage"
	"github.com/trailtours/apiserver/internal/store"
	"github.com/trailtours/apiserver/types"
)

// TourRepository defines persistence operations for tours.
type TourRepository interface {
	List(ctx context.Context, filter store.TourFilter, offset, limit int) ([]types.Tour, int, error)
	Get(ctx context.Context, id int) (types.Tour, error)
	Create(ctx context.Context, tour types.Tour) (types.Tour, error)
	Update(ctx context.Context, tour types.Tour) (types.Tour, error)
	Delete(ctx context.Context, id int) error
	SetCoverImageKey(ctx context.Context, id int, key string) error
}

// TourService encapsulates tour use-cases.
type TourService struct {
	repo    TourRepository
	storage *storage.Storage
}

func NewTourService(repo TourRepository, storage *storage.Storage) *TourService {
	return &TourService{repo: repo, storage: storage}
}

func (s *TourService) List(ctx context.Context, filter store.TourFilter, offset, limit int) ([]types.Tour, int, error) {
	return s.repo.List(ctx, filter, offset, limit)
}

func (s *TourService) Get(ctx context.Context, id int) (types.Tour, error) {
	return s.repo.Get(ctx, id)
}

func (s *TourService) Create(ctx context.Context, tour types.Tour) (types.Tour, error) {
	return s.repo.Create(ctx, tour)
}

func (s *TourService) Update(ctx context.Context, tour types.Tour) (types.Tour, error) {
	return s.repo.Update(ctx, tour)
}

func (s *TourService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// UploadCover stores a cover image in object storage and records its key on
// the tour. The tour must exist before any bytes are uploaded.
func (s *TourService) UploadCover(ctx context.Context, id int, r io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return "", err
	}

	key := fmt.Sprintf("tours/%d/cover-%d", id, time.Now().UnixNano())
	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}

	if err := s.repo.SetCoverImageKey(ctx, id, key); err != nil {
		// The record update failed after the upload; remove the orphan.
		_ = s.storage.Delete(ctx, key)
		return "", err
	}
	return key, nil
}

// DownloadCover opens the tour's cover image. store.ErrNotFound covers both
// a missing tour and a tour without a cover.
func (s *TourService) DownloadCover(ctx context.Context, id int) (io.ReadCloser, error) {
	tour, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tour.CoverImageKey == "" {
		return nil, store.ErrNotFound
	}
	return s.storage.Get(ctx, tour.CoverImageKey)
}
