package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		APIKey(h.apiKey),
	)

	handle := func(path string, fn http.HandlerFunc) {
		mux.Handle("GET "+path, chain(fn))
		mux.Handle("POST "+path, chain(fn))
	}

	// Процессы
	handle("/api/process_request", h.ProcessRequest)
	handle("/api/process_initiate", h.ProcessInitiate)
	handle("/api/process_done", h.ProcessDone)
	handle("/api/process_fail", h.ProcessFail)
	handle("/api/process_progress", h.ProcessProgress)

	// Metadata
	handle("/api/job_metadata", h.JobMetadata)
	handle("/api/update_metadata", h.UpdateMetadata)

	// Чтение
	mux.Handle("GET /api/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /api/processes", chain(http.HandlerFunc(h.ListProcesses)))
}
