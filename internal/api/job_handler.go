package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shaiso/dflow/internal/domain"
)

// JobMetadata возвращает значение metadata по ключу.
// GET /api/job_metadata?job_id=...&key=...
func (h *Handler) JobMetadata(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	key, err := p.required("key")
	if HandleError(w, h.logger, err) {
		return
	}

	v, ok, err := h.lifecycle.GetMetadata(r.Context(), jobID, key)
	if HandleError(w, h.logger, err) {
		return
	}

	resp := MetadataResponse{JobID: jobID, Key: key}
	if ok {
		resp.Value = &v
	}
	Success(w, resp)
}

// UpdateMetadata сохраняет значение metadata по ключу.
// GET /api/update_metadata?job_id=...&key=...&metadata=<json>
func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	key, err := p.required("key")
	if HandleError(w, h.logger, err) {
		return
	}
	raw, err := p.metadata()
	if HandleError(w, h.logger, err) {
		return
	}

	v, err := h.lifecycle.SetMetadata(r.Context(), jobID, key, raw)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, MetadataResponse{JobID: jobID, Key: key, Value: &v})
}

// GetJob возвращает job с историей и процессами, доступными следующими.
// GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		HandleError(w, h.logger, fmt.Errorf("%w: invalid job id %q", domain.ErrValidation, r.PathValue("id")))
		return
	}

	view, err := h.lifecycle.Job(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, view)
}

// ListProcesses возвращает каталог процессов и параметров flow.
// GET /api/processes
func (h *Handler) ListProcesses(w http.ResponseWriter, _ *http.Request) {
	Success(w, CatalogResponse{
		Processes:      h.catalog.Processes(),
		FlowParameters: h.catalog.Parameters(),
		Order:          h.catalog.Order(),
	})
}
