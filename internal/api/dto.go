package api

import (
	"github.com/shaiso/dflow/internal/domain"
)

// AdmissionResponse — ответ process_request / process_initiate.
type AdmissionResponse struct {
	JobID       int64               `json:"job_id"`
	ProcessCode string              `json:"process_code"`
	Entry       domain.ProcessEntry `json:"entry"`
}

// AdmissionFromJob строит ответ по job'у после запуска процесса.
func AdmissionFromJob(job *domain.Job, code string) AdmissionResponse {
	resp := AdmissionResponse{JobID: job.ID, ProcessCode: code}
	if e := job.RunningEntry(); e != nil {
		resp.Entry = *e
	}
	return resp
}

// EntryResponse — ответ process_done / process_fail / process_progress.
type EntryResponse struct {
	JobID int64               `json:"job_id"`
	Entry domain.ProcessEntry `json:"entry"`
}

// MetadataResponse — значение metadata. Value == nil — ключа нет.
type MetadataResponse struct {
	JobID int64         `json:"job_id"`
	Key   string        `json:"key"`
	Value *domain.Value `json:"value"`
}

// CatalogResponse — каталог процессов.
type CatalogResponse struct {
	Processes      []domain.ProcessType   `json:"processes"`
	FlowParameters []domain.FlowParameter `json:"flow_parameters"`
	Order          []string               `json:"order"`
}
