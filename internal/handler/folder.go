package handler

import (
	"context"
	"log/slog"
	"net/http"

	"bilinote/internal/domain/models"
	"bilinote/internal/domain/services"
	"bilinote/internal/httputil"
)

// FolderHandler handles folder HTTP requests
type FolderHandler struct {
	folderService services.FolderService
	association   services.AssociationService
	logger        *slog.Logger
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(folderService services.FolderService, association services.AssociationService, logger *slog.Logger) *FolderHandler {
	return &FolderHandler{
		folderService: folderService,
		association:   association,
		logger:        logger,
	}
}

// CreateFolder creates a new folder
// POST /api/folders
// Returns 201 if created, 409 with existing folder if the id is taken
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req services.CreateFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	folder, err := h.folderService.CreateFolder(r.Context(), &req)
	if err != nil {
		HandleCreateConflict(w, h.logger, err, func(id string) (*models.Folder, error) {
			return h.folderService.GetFolder(context.WithoutCancel(r.Context()), id)
		})
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, folder)
}

// ListFolders returns every folder as a flat list
// GET /api/folders
func (h *FolderHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.folderService.ListFolders(r.Context())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folders)
}

// GetTree returns the folder forest
// GET /api/folders/tree
func (h *FolderHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.folderService.GetTree(r.Context())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tree)
}

// GetFolder retrieves a folder by ID
// GET /api/folders/{id}
func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folderService.GetFolder(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folder)
}

// UpdateFolder applies a sparse update
// PUT /api/folders/{id}
func (h *FolderHandler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	folder, err := h.folderService.UpdateFolder(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folder)
}

// DeleteFolder deletes a folder and its subtree, detaching their history
// DELETE /api/folders/{id}
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	result, err := h.folderService.DeleteFolder(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// MoveFolder re-parents a folder
// POST /api/folders/{id}/move
func (h *FolderHandler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	var req services.MoveFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	folder, err := h.folderService.MoveFolder(r.Context(), r.PathValue("id"), req.ParentID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folder)
}

// MoveHistory files a history row under a folder
// POST /api/folders/move-history
func (h *FolderHandler) MoveHistory(w http.ResponseWriter, r *http.Request) {
	var req services.MoveHistoryRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TaskID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	history, err := h.association.MoveHistoryToFolder(r.Context(), req.TaskID, req.FolderID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, history)
}
