package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/dflow/internal/admission"
	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/lifecycle"
	"github.com/shaiso/dflow/internal/repo"
)

type fakeObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *fakeObserver) ObserveAdmission(process string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[process]++
}

type testServer struct {
	*httptest.Server
	store    *repo.MemoryStore
	observer *fakeObserver
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	cat := catalog.Default()
	store := repo.NewMemoryStore()
	observer := &fakeObserver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHandler(Config{
		Admission: admission.New(admission.Config{Catalog: cat, Store: store}),
		Lifecycle: lifecycle.New(lifecycle.Config{Catalog: cat, Store: store}),
		Catalog:   cat,
		Observer:  observer,
		APIKey:    apiKey,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, observer: observer}
}

func (s *testServer) createJobs(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.store.CreateJob(context.Background(), nil); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
}

// response — конверт с сырыми данными.
type response struct {
	Status Status          `json:"status"`
	Data   json.RawMessage `json:"data"`
	code   int
}

func decode(t *testing.T, resp *http.Response) response {
	t.Helper()
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	out.code = resp.StatusCode
	return out
}

func (s *testServer) get(t *testing.T, path string, q url.Values) response {
	t.Helper()
	resp, err := http.Get(s.URL + path + "?" + q.Encode())
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return decode(t, resp)
}

func (s *testServer) postJSON(t *testing.T, path, body string) response {
	t.Helper()
	resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return decode(t, resp)
}

func expectOK(t *testing.T, r response) {
	t.Helper()
	if r.Status.Code != StatusOK {
		t.Fatalf("expected status 0, got %+v", r.Status.Error)
	}
}

func expectFail(t *testing.T, r response, code ErrorCode) {
	t.Helper()
	if r.Status.Code != StatusFail || r.Status.Error == nil {
		t.Fatalf("expected status -1, got %+v", r.Status)
	}
	if r.Status.Error.Code != code {
		t.Errorf("expected error code %d, got %d (%s)", code, r.Status.Error.Code, r.Status.Error.Message)
	}
}

func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

// --- Process Tests ---

// Сценарий: scan_job забирает job 1, rename_files — job 2,
// второй rename_files упирается в лимит, copy_files не находит свободного job'а.
func TestScenario(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 2)

	r := s.get(t, "/api/process_request", query("process_code", "scan_job"))
	expectOK(t, r)
	var adm AdmissionResponse
	json.Unmarshal(r.Data, &adm)
	if adm.JobID != 1 || adm.Entry.State != domain.StateStarted {
		t.Errorf("expected job 1 STARTED, got %+v", adm)
	}

	r = s.get(t, "/api/process_request", query("process_code", "rename_files"))
	expectOK(t, r)
	json.Unmarshal(r.Data, &adm)
	if adm.JobID != 2 {
		t.Errorf("expected job 2, got %d", adm.JobID)
	}

	r = s.get(t, "/api/process_request", query("process_code", "rename_files"))
	expectFail(t, r, ErrCodeNotAvailable)
	if r.code != http.StatusOK {
		t.Errorf("domain errors use HTTP 200, got %d", r.code)
	}

	r = s.get(t, "/api/process_request", query("process_code", "copy_files"))
	expectFail(t, r, ErrCodeNotAvailable)

	if s.observer.calls["rename_files"] != 2 {
		t.Errorf("expected 2 rename_files admissions observed, got %d", s.observer.calls["rename_files"])
	}

	// завершение и повторный запуск
	expectOK(t, s.get(t, "/api/process_done", query("job_id", "2", "process_code", "rename_files")))
	expectOK(t, s.get(t, "/api/process_done", query("job_id", "2", "process_code", "rename_files")))
	expectOK(t, s.get(t, "/api/process_done", query("job_id", "1", "process_code", "scan_job")))

	r = s.get(t, "/api/process_request", query("process_code", "rename_files"))
	expectOK(t, r)
	json.Unmarshal(r.Data, &adm)
	if adm.JobID != 1 {
		t.Errorf("expected job 1 after rename freed, got %d", adm.JobID)
	}
}

func TestProcessRequest_Errors(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)

	expectFail(t, s.get(t, "/api/process_request", query("process_code", "test")), ErrCodeUnknownProcess)
	expectFail(t, s.get(t, "/api/process_request", nil), ErrCodeValidation)
}

func TestProcessInitiate(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 3)

	expectOK(t, s.get(t, "/api/process_initiate", query("job_id", "1", "process_code", "scan_job")))

	tests := []struct {
		name string
		q    url.Values
		want ErrorCode
	}{
		{"job busy", query("job_id", "1", "process_code", "copy_files"), ErrCodeInvalidJobState},
		{"unknown job", query("job_id", "99", "process_code", "copy_files"), ErrCodeJobNotFound},
		{"bad job id", query("job_id", "wrong", "process_code", "copy_files"), ErrCodeValidation},
		{"unknown process", query("job_id", "2", "process_code", "nope"), ErrCodeUnknownProcess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectFail(t, s.get(t, "/api/process_initiate", tt.q), tt.want)
		})
	}
}

func TestProcessDone_WithoutStart(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)

	expectFail(t, s.get(t, "/api/process_done", query("job_id", "1", "process_code", "rename_files")), ErrCodeEntryNotFound)
}

func TestProcessFail(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)
	expectOK(t, s.get(t, "/api/process_initiate", query("job_id", "1", "process_code", "copy_files")))

	r := s.get(t, "/api/process_fail", query("job_id", "1", "process_code", "copy_files", "reason", "disk full"))
	expectOK(t, r)
	var er EntryResponse
	json.Unmarshal(r.Data, &er)
	if er.Entry.State != domain.StateFailed || er.Entry.Error != "disk full" {
		t.Errorf("unexpected entry: %+v", er.Entry)
	}
}

func TestProcessProgress(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)

	q := query("job_id", "1", "process_code", "rename_files",
		"progress_info[total]", "10", "progress_info[done]", "2", "progress_info[percent_done]", "20")

	// до запуска
	expectFail(t, s.get(t, "/api/process_progress", q), ErrCodeEntryNotFound)

	expectOK(t, s.get(t, "/api/process_initiate", query("job_id", "1", "process_code", "rename_files")))

	r := s.get(t, "/api/process_progress", q)
	expectOK(t, r)
	var er EntryResponse
	json.Unmarshal(r.Data, &er)
	want := domain.Progress{Total: 10, Done: 2, PercentDone: 20}
	if er.Entry.Progress == nil || *er.Entry.Progress != want {
		t.Errorf("expected %+v, got %+v", want, er.Entry.Progress)
	}

	// JSON тело
	r = s.postJSON(t, "/api/process_progress",
		`{"job_id": 1, "process_code": "rename_files", "progress_info": {"total": 10, "done": 5, "percent_done": 50}}`)
	expectOK(t, r)
	json.Unmarshal(r.Data, &er)
	if er.Entry.Progress.Done != 5 {
		t.Errorf("expected done 5, got %+v", er.Entry.Progress)
	}

	tests := []struct {
		name string
		q    url.Values
	}{
		{"missing progress", query("job_id", "1", "process_code", "rename_files")},
		{"not a number", query("job_id", "1", "process_code", "rename_files", "progress_info[total]", "ten")},
		{"done over total", query("job_id", "1", "process_code", "rename_files",
			"progress_info[total]", "1", "progress_info[done]", "2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectFail(t, s.get(t, "/api/process_progress", tt.q), ErrCodeValidation)
		})
	}
}

// --- Metadata Tests ---

func TestMetadata(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)

	expectFail(t, s.get(t, "/api/job_metadata", query("job_id", "wrong", "key", "0001")), ErrCodeValidation)
	expectFail(t, s.get(t, "/api/update_metadata",
		query("job_id", "7", "key", "0001", "metadata", `{}`)), ErrCodeJobNotFound)

	expectOK(t, s.get(t, "/api/update_metadata",
		query("job_id", "1", "key", "0001", "metadata", `{"type":"test"}`)))

	r := s.get(t, "/api/job_metadata", query("job_id", "1", "key", "0001"))
	expectOK(t, r)
	var mr struct {
		Key   string         `json:"key"`
		Value map[string]any `json:"value"`
	}
	json.Unmarshal(r.Data, &mr)
	if mr.Value["type"] != "test" {
		t.Errorf("expected type=test, got %v", mr.Value)
	}

	// пары metadata[field]
	expectOK(t, s.get(t, "/api/update_metadata",
		query("job_id", "1", "key", "0002", "metadata[type]", "page", "metadata[side]", "left")))
	r = s.get(t, "/api/job_metadata", query("job_id", "1", "key", "0002"))
	json.Unmarshal(r.Data, &mr)
	if mr.Value["side"] != "left" {
		t.Errorf("expected side=left, got %v", mr.Value)
	}

	// отсутствующий ключ — null
	r = s.get(t, "/api/job_metadata", query("job_id", "1", "key", "missing"))
	expectOK(t, r)
	var raw map[string]json.RawMessage
	json.Unmarshal(r.Data, &raw)
	if string(raw["value"]) != "null" {
		t.Errorf("expected null value, got %s", raw["value"])
	}

	expectFail(t, s.get(t, "/api/update_metadata",
		query("job_id", "1", "key", "ocr_flow", "metadata", `"GUB"`)), ErrCodeValidation)
	expectFail(t, s.get(t, "/api/update_metadata",
		query("job_id", "1", "key", "k", "metadata", `[1,2]`)), ErrCodeValidation)
	expectFail(t, s.get(t, "/api/update_metadata",
		query("job_id", "1", "key", "k")), ErrCodeValidation)
}

// --- Read Tests ---

func TestGetJob(t *testing.T) {
	s := newTestServer(t, "")
	s.createJobs(t, 1)
	expectOK(t, s.get(t, "/api/process_initiate", query("job_id", "1", "process_code", "scan_job")))

	resp, err := http.Get(s.URL + "/api/jobs/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r := decode(t, resp)
	expectOK(t, r)

	var view struct {
		ID      int64                 `json:"id"`
		State   domain.State          `json:"state"`
		History []domain.ProcessEntry `json:"history"`
		Next    []string              `json:"next"`
	}
	json.Unmarshal(r.Data, &view)
	if view.ID != 1 || view.State != domain.StateStarted || len(view.History) != 1 {
		t.Errorf("unexpected job view: %+v", view)
	}

	resp, _ = http.Get(s.URL + "/api/jobs/42")
	expectFail(t, decode(t, resp), ErrCodeJobNotFound)

	resp, _ = http.Get(s.URL + "/api/jobs/abc")
	expectFail(t, decode(t, resp), ErrCodeValidation)
}

func TestListProcesses(t *testing.T) {
	s := newTestServer(t, "")

	resp, err := http.Get(s.URL + "/api/processes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r := decode(t, resp)
	expectOK(t, r)

	var cat CatalogResponse
	json.Unmarshal(r.Data, &cat)
	if len(cat.Processes) != 4 || cat.Processes[0].Code != "scan_job" || !cat.Processes[0].ManualOnly {
		t.Errorf("unexpected catalog: %+v", cat.Processes)
	}
	if len(cat.FlowParameters) != 4 {
		t.Errorf("expected 4 flow parameters, got %d", len(cat.FlowParameters))
	}
}

// --- Middleware Tests ---

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, "secret")
	s.createJobs(t, 1)

	r := s.get(t, "/api/process_request", query("process_code", "scan_job"))
	if r.code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", r.code)
	}
	expectFail(t, r, ErrCodeUnauthorized)

	expectFail(t, s.get(t, "/api/processes", query("api_key", "wrong")), ErrCodeUnauthorized)
	expectOK(t, s.get(t, "/api/processes", query("api_key", "secret")))

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/processes", nil)
	req.Header.Set(APIKeyHeader, "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	expectOK(t, decode(t, resp))
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	var env response
	json.NewDecoder(rec.Body).Decode(&env)
	if env.Status.Error == nil || env.Status.Error.Code != ErrCodeInternal {
		t.Errorf("unexpected envelope: %+v", env.Status)
	}
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
		ok   bool
	}{
		{domain.ErrValidation, ErrCodeValidation, true},
		{domain.ErrJobNotFound, ErrCodeJobNotFound, true},
		{domain.ErrInvalidJobState, ErrCodeInvalidJobState, true},
		{domain.ErrUnknownProcess, ErrCodeUnknownProcess, true},
		{domain.ErrTooManyRunning, ErrCodeNotAvailable, true},
		{domain.ErrNoJobAvailable, ErrCodeNotAvailable, true},
		{domain.ErrEntryNotFound, ErrCodeEntryNotFound, true},
		{domain.ErrInvalidTransition, ErrCodeInvalidTransition, true},
		{io.ErrUnexpectedEOF, ErrCodeInternal, false},
	}

	for _, tt := range tests {
		got, ok := ErrorCodeFor(tt.err)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%v: expected (%d, %v), got (%d, %v)", tt.err, tt.want, tt.ok, got, ok)
		}
	}
}
