package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/dataset-search-api/middleware"
	"github.com/upb/dataset-search-api/models"
	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds create and update request bodies
const maxBodyBytes = 8 << 20

// DatasetService is the catalogue behaviour the handler depends on
type DatasetService interface {
	BulkCreate(ctx context.Context, claims *oidc.Claims, inputs []models.DatasetInput) ([]*models.Dataset, error)
	Get(ctx context.Context, id string) (*models.Dataset, error)
	Update(ctx context.Context, claims *oidc.Claims, id string, update models.DatasetUpdate) (*models.Dataset, error)
	Delete(ctx context.Context, claims *oidc.Claims, id string) error
	Search(ctx context.Context, query string, limit int) ([]*models.Dataset, error)
	Distinct(ctx context.Context, field string) (*models.DistinctValues, error)
}

// datasetBatch wraps a create request body for validation
type datasetBatch struct {
	Datasets []models.DatasetInput `json:"datasets" validate:"dive"`
}

// DatasetHandler handles dataset catalogue requests
type DatasetHandler struct {
	service DatasetService
	logger  *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler
func NewDatasetHandler(service DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /search/create
// The body is a JSON array of datasets; all are stored or none are.
func (h *DatasetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var inputs []models.DatasetInput
	if !h.decode(w, r, &inputs) {
		return
	}

	if err := utils.ValidateStruct(datasetBatch{Datasets: inputs}); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	created, err := h.service.BulkCreate(r.Context(), claims, inputs)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusCreated, utils.SuccessResponse{
		Data:    created,
		Message: "Datasets created successfully!",
	})
}

// HandleGet handles GET /search/datasets/{id}
func (h *DatasetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ds, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse{Data: ds})
}

// HandleUpdate handles PUT /search/update/{id}
func (h *DatasetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var update models.DatasetUpdate
	if !h.decode(w, r, &update) {
		return
	}

	if err := utils.ValidateStruct(update); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	ds, err := h.service.Update(r.Context(), claims, chi.URLParam(r, "id"), update)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse{Data: ds})
}

// HandleDelete handles DELETE /search/delete/{id}
func (h *DatasetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if err := h.service.Delete(r.Context(), claims, chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse{Data: true})
}

// HandleSearch handles GET /search/search/{query}?limit=N
func (h *DatasetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", map[string]interface{}{"limit": raw})
			return
		}
		limit = n
	}

	datasets, err := h.service.Search(r.Context(), chi.URLParam(r, "query"), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse{Data: datasets})
}

// HandleDistinct handles GET /agg/getDistinctValues/{field}
func (h *DatasetHandler) HandleDistinct(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.Distinct(r.Context(), chi.URLParam(r, "field"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse{Data: values})
}

func (h *DatasetHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug("invalid request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}

func (h *DatasetHandler) write(w http.ResponseWriter, status int, body interface{}) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
