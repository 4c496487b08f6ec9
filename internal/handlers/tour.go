package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/trailtours/apiserver/internal/services"
	"github.com/trailtours/apiserver/internal/store"
	"github.com/trailtours/apiserver/types"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxCoverImageBytes = 8 << 20
	formFieldCover     = "cover"
)

var (
	errInvalidPage  = errors.New("page must be a positive integer")
	errInvalidLimit = errors.New("limit must be between 1 and 100")
)

// TourHandler provides HTTP handlers for tours.
type TourHandler struct {
	tourService *services.TourService
}

// NewTourHandler constructs a handler over the tour service.
func NewTourHandler(tourService *services.TourService) *TourHandler {
	return &TourHandler{tourService: tourService}
}

// TourRouter registers tour routes on the given router. Reads are public;
// mutations require an authenticated admin or lead guide.
func TourRouter(r chi.Router, tourService *services.TourService, protect func(http.Handler) http.Handler) {
	handler := NewTourHandler(tourService)
	staffOnly := RestrictTo(types.RoleAdmin, types.RoleLeadGuide)

	r.Get("/", handler.ListTours)
	r.With(protect, staffOnly).Post("/", handler.CreateTour)
	r.Route("/{tourID}", func(r chi.Router) {
		r.Get("/", handler.GetTour)
		r.Get("/cover", handler.GetCover)
		r.With(protect, staffOnly).Patch("/", handler.UpdateTour)
		r.With(protect, staffOnly).Delete("/", handler.DeleteTour)
		r.With(protect, staffOnly).Put("/cover", handler.UploadCover)
	})
}

func (h *TourHandler) ListTours(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, err := parseTourFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.tourService.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tours")
		return
	}

	writeJSON(w, http.StatusOK, TourListResponse{
		Status: "success",
		Items:  items,
		Page:   page,
		Limit:  limit,
		Total:  total,
	})
}

func (h *TourHandler) GetTour(w http.ResponseWriter, r *http.Request) {
	id, err := parseTourID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tour, err := h.tourService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No tour found with that ID")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch tour")
		return
	}

	writeJSON(w, http.StatusOK, TourResponse{Status: "success", Data: tour})
}

func (h *TourHandler) CreateTour(w http.ResponseWriter, r *http.Request) {
	var req TourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tour, err := h.tourService.Create(r.Context(), req.toTour())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tour")
		return
	}

	writeJSON(w, http.StatusCreated, TourResponse{Status: "success", Data: tour})
}

func (h *TourHandler) UpdateTour(w http.ResponseWriter, r *http.Request) {
	id, err := parseTourID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.tourService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No tour found with that ID")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch tour")
		return
	}

	var req TourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.applyTo(&existing)
	if err := validateTour(existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.tourService.Update(r.Context(), existing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update tour")
		return
	}

	writeJSON(w, http.StatusOK, TourResponse{Status: "success", Data: updated})
}

func (h *TourHandler) DeleteTour(w http.ResponseWriter, r *http.Request) {
	id, err := parseTourID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tourService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No tour found with that ID")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete tour")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadCover accepts a multipart form with a "cover" file and stores it in
// object storage.
func (h *TourHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseTourID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCoverImageBytes)
	if err := r.ParseMultipartForm(maxCoverImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or oversized upload")
		return
	}

	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing cover file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	key, err := h.tourService.UploadCover(r.Context(), id, file, header.Size, contentType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No tour found with that ID")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to upload cover")
		return
	}

	writeJSON(w, http.StatusOK, CoverResponse{Status: "success", Key: key})
}

// GetCover streams the tour's cover image from object storage.
func (h *TourHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseTourID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.tourService.DownloadCover(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No cover found for that tour")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch cover")
		return
	}
	defer reader.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func parseTourID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "tourID"))
	if err != nil || id < 1 {
		return 0, errors.New("tour id must be a positive integer")
	}
	return id, nil
}

func parseTourFilter(r *http.Request) (store.TourFilter, error) {
	filter := store.TourFilter{}
	query := r.URL.Query()

	if raw := query.Get("difficulty"); raw != "" {
		difficulty := types.Difficulty(raw)
		if !types.ValidDifficulty(difficulty) {
			return store.TourFilter{}, errors.New("unknown difficulty")
		}
		filter.Difficulty = difficulty
	}
	if raw := query.Get("maxPrice"); raw != "" {
		maxPrice, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || maxPrice < 1 {
			return store.TourFilter{}, errors.New("maxPrice must be a positive integer")
		}
		filter.MaxPrice = maxPrice
	}
	if raw := query.Get("sort"); raw != "" {
		if after, found := strings.CutPrefix(raw, "-"); found {
			filter.SortBy = after
			filter.SortDesc = true
		} else {
			filter.SortBy = raw
		}
		if !sortableFields[filter.SortBy] {
			return store.TourFilter{}, errors.New("sort must be one of name, price, duration, created_at")
		}
	}
	return filter, nil
}

var sortableFields = map[string]bool{
	"name":       true,
	"price":      true,
	"duration":   true,
	"created_at": true,
}

type TourRequest struct {
	Name         *string `json:"name"`
	Summary      *string `json:"summary"`
	Description  *string `json:"description"`
	Duration     *int    `json:"duration"`
	MaxGroupSize *int    `json:"max_group_size"`
	Difficulty   *string `json:"difficulty"`
	Price        *int64  `json:"price"`
}

func (req TourRequest) toTour() types.Tour {
	var tour types.Tour
	req.applyTo(&tour)
	return tour
}

func (req TourRequest) applyTo(tour *types.Tour) {
	if req.Name != nil {
		tour.Name = *req.Name
	}
	if req.Summary != nil {
		tour.Summary = *req.Summary
	}
	if req.Description != nil {
		tour.Description = *req.Description
	}
	if req.Duration != nil {
		tour.Duration = *req.Duration
	}
	if req.MaxGroupSize != nil {
		tour.MaxGroupSize = *req.MaxGroupSize
	}
	if req.Difficulty != nil {
		tour.Difficulty = types.Difficulty(*req.Difficulty)
	}
	if req.Price != nil {
		tour.Price = *req.Price
	}
}

func (req TourRequest) validate() error {
	return validateTour(req.toTour())
}

func validateTour(tour types.Tour) error {
	if tour.Name == "" {
		return errors.New("name is required")
	}
	if tour.Duration < 1 {
		return errors.New("duration must be at least 1 day")
	}
	if tour.MaxGroupSize < 1 {
		return errors.New("max_group_size must be at least 1")
	}
	if !types.ValidDifficulty(tour.Difficulty) {
		return errors.New("difficulty must be easy, medium or difficult")
	}
	if tour.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}

type TourListResponse struct {
	Status string       `json:"status"`
	Items  []types.Tour `json:"items"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
	Total  int          `json:"total"`
}

type TourResponse struct {
	Status string     `json:"status"`
	Data   types.Tour `json:"data"`
}

type CoverResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}
