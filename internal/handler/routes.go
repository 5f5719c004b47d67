package handler

import (
	"net/http"
)

// RegisterRoutes mounts every API route on mux (Go 1.22+ patterns)
func RegisterRoutes(mux *http.ServeMux, folders *FolderHandler, history *HistoryHandler, health *HealthHandler) {
	mux.HandleFunc("GET /health", health.HealthCheck)

	// Folder routes. Literal segments win over {id}.
	mux.HandleFunc("POST /api/folders", folders.CreateFolder)
	mux.HandleFunc("GET /api/folders", folders.ListFolders)
	mux.HandleFunc("GET /api/folders/tree", folders.GetTree)
	mux.HandleFunc("POST /api/folders/move-history", folders.MoveHistory)
	mux.HandleFunc("GET /api/folders/{id}", folders.GetFolder)
	mux.HandleFunc("PUT /api/folders/{id}", folders.UpdateFolder)
	mux.HandleFunc("PATCH /api/folders/{id}", folders.UpdateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", folders.DeleteFolder)
	mux.HandleFunc("POST /api/folders/{id}/move", folders.MoveFolder)

	// History routes
	mux.HandleFunc("GET /api/history", history.ListHistory)
	mux.HandleFunc("POST /api/history", history.CreateHistory)
	mux.HandleFunc("GET /api/history/by-video", history.ListByVideo)
	mux.HandleFunc("POST /api/history/upsert", history.UpsertHistory)
	mux.HandleFunc("POST /api/history/import", history.ImportHistory)
	mux.HandleFunc("POST /api/history/import-batch", history.ImportBatch)
	mux.HandleFunc("GET /api/history/{task_id}", history.GetHistory)
	mux.HandleFunc("PUT /api/history/{task_id}", history.UpdateHistory)
	mux.HandleFunc("PATCH /api/history/{task_id}", history.UpdateHistory)
	mux.HandleFunc("DELETE /api/history/{task_id}", history.DeleteHistory)
}
