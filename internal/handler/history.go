package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"bilinote/internal/domain/services"
	"bilinote/internal/httputil"
)

// HistoryHandler handles history HTTP requests
type HistoryHandler struct {
	historyService services.HistoryService
	upsertService  services.UpsertService
	logger         *slog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(historyService services.HistoryService, upsertService services.UpsertService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		upsertService:  upsertService,
		logger:         logger,
	}
}

// ListHistory returns one page of history, newest first
// GET /api/history?limit=&offset=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.historyService.ListHistory(r.Context(), &services.ListHistoryRequest{Limit: limit, Offset: offset})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, page)
}

// ListByVideo returns all history for one video
// GET /api/history/by-video?video_id=&platform=
func (h *HistoryHandler) ListByVideo(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rows, err := h.historyService.ListByVideo(r.Context(), query.Get("video_id"), query.Get("platform"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, rows)
}

// GetHistory retrieves one row
// GET /api/history/{task_id}
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.historyService.GetHistory(r.Context(), r.PathValue("task_id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, history)
}

// CreateHistory inserts a new row
// POST /api/history
func (h *HistoryHandler) CreateHistory(w http.ResponseWriter, r *http.Request) {
	input, ok := h.normalize(w, r)
	if !ok {
		return
	}

	history, err := h.historyService.CreateHistory(r.Context(), input)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, history)
}

// UpdateHistory applies a sparse update; task_id comes from the path
// PUT /api/history/{task_id}
func (h *HistoryHandler) UpdateHistory(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")

	input, ok := h.normalize(w, r)
	if !ok {
		return
	}
	if input.TaskID != "" && input.TaskID != taskID {
		httputil.RespondError(w, http.StatusBadRequest, "task_id cannot be changed")
		return
	}

	history, err := h.historyService.UpdateHistory(r.Context(), taskID, input.Fields)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, history)
}

// DeleteHistory removes a row
// DELETE /api/history/{task_id}
func (h *HistoryHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.historyService.DeleteHistory(r.Context(), r.PathValue("task_id")); err != nil {
		handleError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpsertHistory inserts or sparse-merges a payload
// POST /api/history/upsert
// Returns 201 when a row was created, 200 when an existing row was merged
func (h *HistoryHandler) UpsertHistory(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := httputil.ParseJSON(w, r, &raw); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.upsertService.Upsert(r.Context(), raw)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.RespondJSON(w, status, result)
}

// ImportHistory creates one row; 409 if the task id already exists
// POST /api/history/import
func (h *HistoryHandler) ImportHistory(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := httputil.ParseJSON(w, r, &raw); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	history, err := h.upsertService.Import(r.Context(), raw)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, history)
}

// ImportBatch imports a list of payloads, skipping existing task ids
// POST /api/history/import-batch
func (h *HistoryHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if err := httputil.ParseJSON(w, r, &items); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Request body must be a JSON array")
		return
	}

	result, err := h.upsertService.ImportBatch(r.Context(), items)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *HistoryHandler) normalize(w http.ResponseWriter, r *http.Request) (*services.HistoryInput, bool) {
	var raw json.RawMessage
	if err := httputil.ParseJSON(w, r, &raw); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	input, err := h.upsertService.Normalize(raw)
	if err != nil {
		handleError(w, h.logger, err)
		return nil, false
	}
	return input, true
}
