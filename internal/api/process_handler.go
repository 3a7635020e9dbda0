package api

import (
	"net/http"

	"github.com/shaiso/dflow/internal/telemetry"
)

// ProcessRequest выдаёт самый старый подходящий job для процесса.
// GET /api/process_request?process_code=...
func (h *Handler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	code, err := p.processCode()
	if HandleError(w, h.logger, err) {
		return
	}

	job, err := h.admission.RequestProcess(r.Context(), code)
	h.observeAdmission(code, err)
	if HandleError(w, h.logger, err) {
		return
	}

	telemetry.FromContext(r.Context()).Info("process started", "job_id", job.ID, "process_code", code)
	Success(w, AdmissionFromJob(job, code))
}

// ProcessInitiate запускает процесс на конкретном job'е.
// GET /api/process_initiate?job_id=...&process_code=...
func (h *Handler) ProcessInitiate(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	code, err := p.processCode()
	if HandleError(w, h.logger, err) {
		return
	}

	job, err := h.admission.InitiateProcess(r.Context(), jobID, code)
	h.observeAdmission(code, err)
	if HandleError(w, h.logger, err) {
		return
	}

	telemetry.FromContext(r.Context()).Info("process initiated", "job_id", job.ID, "process_code", code)
	Success(w, AdmissionFromJob(job, code))
}

// ProcessDone завершает процесс. Повторный вызов не ошибка.
// GET /api/process_done?job_id=...&process_code=...
func (h *Handler) ProcessDone(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	code, err := p.processCode()
	if HandleError(w, h.logger, err) {
		return
	}

	entry, err := h.lifecycle.MarkDone(r.Context(), jobID, code)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, EntryResponse{JobID: jobID, Entry: *entry})
}

// ProcessFail переводит процесс в FAILED.
// GET /api/process_fail?job_id=...&process_code=...&reason=...
func (h *Handler) ProcessFail(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	code, err := p.processCode()
	if HandleError(w, h.logger, err) {
		return
	}

	entry, err := h.lifecycle.MarkFailed(r.Context(), jobID, code, p.Get("reason"))
	if HandleError(w, h.logger, err) {
		return
	}

	telemetry.FromContext(r.Context()).Warn("process failed", "job_id", jobID, "process_code", code, "reason", entry.Error)
	Success(w, EntryResponse{JobID: jobID, Entry: *entry})
}

// ProcessProgress записывает прогресс процесса.
// GET /api/process_progress?job_id=...&process_code=...&progress_info[total]=...
func (h *Handler) ProcessProgress(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if HandleError(w, h.logger, err) {
		return
	}
	jobID, err := p.jobID()
	if HandleError(w, h.logger, err) {
		return
	}
	code, err := p.processCode()
	if HandleError(w, h.logger, err) {
		return
	}
	prog, err := p.progress()
	if HandleError(w, h.logger, err) {
		return
	}

	entry, err := h.lifecycle.RecordProgress(r.Context(), jobID, code, prog)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, EntryResponse{JobID: jobID, Entry: *entry})
}
