package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailtours/apiserver/internal/auth"
	"github.com/trailtours/apiserver/internal/services"
	"github.com/trailtours/apiserver/internal/storage"
	"github.com/trailtours/apiserver/internal/store"
	"github.com/trailtours/apiserver/types"
)

type memoryTourRepo struct {
	mu     sync.Mutex
	nextID int
	tours  map[int]*types.Tour
}

func newMemoryTourRepo() *memoryTourRepo {
	return &memoryTourRepo{nextID: 1, tours: make(map[int]*types.Tour)}
}

func (r *memoryTourRepo) List(ctx context.Context, filter store.TourFilter, offset, limit int) ([]types.Tour, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]types.Tour, 0, len(r.tours))
	for _, tour := range r.tours {
		if filter.Difficulty != "" && tour.Difficulty != filter.Difficulty {
			continue
		}
		if filter.MaxPrice > 0 && tour.Price > filter.MaxPrice {
			continue
		}
		matched = append(matched, *tour)
	}
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *memoryTourRepo) Get(ctx context.Context, id int) (types.Tour, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tour, ok := r.tours[id]
	if !ok {
		return types.Tour{}, store.ErrNotFound
	}
	return *tour, nil
}

func (r *memoryTourRepo) Create(ctx context.Context, tour types.Tour) (types.Tour, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tour.ID = r.nextID
	r.nextID++
	r.tours[tour.ID] = &tour
	return tour, nil
}

func (r *memoryTourRepo) Update(ctx context.Context, tour types.Tour) (types.Tour, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tours[tour.ID]; !ok {
		return types.Tour{}, store.ErrNotFound
	}
	r.tours[tour.ID] = &tour
	return tour, nil
}

func (r *memoryTourRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tours[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.tours, id)
	return nil
}

func (r *memoryTourRepo) SetCoverImageKey(ctx context.Context, id int, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tour, ok := r.tours[id]
	if !ok {
		return store.ErrNotFound
	}
	tour.CoverImageKey = key
	return nil
}

type memoryObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStorage() *memoryObjectStorage {
	return &memoryObjectStorage{objects: make(map[string][]byte)}
}

func (s *memoryObjectStorage) EnsureBucket(ctx context.Context) error { return nil }

func (s *memoryObjectStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryObjectStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryObjectStorage) Bucket() string { return "test-bucket" }

type tourTestEnv struct {
	router  *chi.Mux
	repo    *memoryTourRepo
	objects *memoryObjectStorage
	users   *memoryRepo
	issuer  *auth.TokenIssuer
}

func newTourTestEnv(t *testing.T) *tourTestEnv {
	t.Helper()
	userRepo := newMemoryRepo()
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	authService := services.NewAuthService(userRepo, issuer, &captureSender{}, 10*time.Minute, nil)
	authHandler := NewAuthHandler(authService, issuer, 24*time.Hour, false)

	tourRepo := newMemoryTourRepo()
	objects := newMemoryObjectStorage()
	tourService := services.NewTourService(tourRepo, storage.NewStorage(objects))

	router := chi.NewRouter()
	router.Route("/api/v1/tours", func(r chi.Router) {
		TourRouter(r, tourService, authHandler.Protect)
	})

	return &tourTestEnv{router: router, repo: tourRepo, objects: objects, users: userRepo, issuer: issuer}
}

func (env *tourTestEnv) tokenFor(t *testing.T, role types.Role) string {
	t.Helper()
	user, err := env.users.Create(context.Background(), types.User{
		Name:         "Test " + string(role),
		Email:        string(role) + "@example.com",
		Role:         role,
		PasswordHash: "unused",
	})
	require.NoError(t, err)
	token, err := env.issuer.Sign(user.ID)
	require.NoError(t, err)
	return token
}

func (env *tourTestEnv) seedTour(t *testing.T, name string, difficulty types.Difficulty, price int64) types.Tour {
	t.Helper()
	tour, err := env.repo.Create(context.Background(), types.Tour{
		Name:         name,
		Duration:     5,
		MaxGroupSize: 10,
		Difficulty:   difficulty,
		Price:        price,
	})
	require.NoError(t, err)
	return tour
}

func TestListTours_FiltersByDifficulty(t *testing.T) {
	env := newTourTestEnv(t)
	env.seedTour(t, "Forest Walk", types.DifficultyEasy, 100)
	env.seedTour(t, "Glacier Crossing", types.DifficultyDifficult, 900)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours?difficulty=easy", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TourListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Forest Walk", resp.Items[0].Name)
	assert.Equal(t, 1, resp.Total)
}

func TestListTours_RejectsUnknownSort(t *testing.T) {
	env := newTourTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours?sort=password_hash", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTour_RequiresStaffRole(t *testing.T) {
	env := newTourTestEnv(t)
	body, _ := json.Marshal(map[string]any{
		"name": "New Tour", "duration": 3, "max_group_size": 8,
		"difficulty": "easy", "price": 250,
	})

	// No token at all.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tours", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Regular user.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/tours", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, types.RoleUser))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Lead guide.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/tours", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, types.RoleLeadGuide))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp TourResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "New Tour", resp.Data.Name)
}

func TestCreateTour_ValidatesInput(t *testing.T) {
	env := newTourTestEnv(t)
	token := env.tokenFor(t, types.RoleAdmin)

	body, _ := json.Marshal(map[string]any{
		"name": "Bad Tour", "duration": 3, "max_group_size": 8,
		"difficulty": "impossible", "price": 250,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tours", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "difficulty")
}

func TestUploadAndDownloadCover(t *testing.T) {
	env := newTourTestEnv(t)
	tour := env.seedTour(t, "Coastal Hike", types.DifficultyEasy, 500)
	token := env.tokenFor(t, types.RoleAdmin)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("cover", "cover.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/tours/"+strconv.Itoa(tour.ID)+"/cover", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	get := httptest.NewRequest(http.MethodGet, "/api/v1/tours/"+strconv.Itoa(tour.ID)+"/cover", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, get)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake-jpeg-bytes", rec.Body.String())
}

func TestGetCover_MissingCover(t *testing.T) {
	env := newTourTestEnv(t)
	tour := env.seedTour(t, "Bare Tour", types.DifficultyEasy, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours/"+strconv.Itoa(tour.ID)+"/cover", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTour(t *testing.T) {
	env := newTourTestEnv(t)
	tour := env.seedTour(t, "Doomed Tour", types.DifficultyMedium, 300)
	token := env.tokenFor(t, types.RoleAdmin)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tours/"+strconv.Itoa(tour.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := env.repo.Get(context.Background(), tour.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
