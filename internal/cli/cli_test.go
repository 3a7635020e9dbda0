package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/dflow/internal/api/apitest"
	"github.com/shaiso/dflow/internal/client"
)

// run выполняет команду dflow против тестового API.
func run(t *testing.T, apiURL string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--api-url", apiURL}, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, apiURL string, args ...string) string {
	t.Helper()
	out, _, err := run(t, apiURL, args...)
	if err != nil {
		t.Fatalf("dflow %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestProcessCommands(t *testing.T) {
	srv := apitest.New(t, "")
	srv.CreateJob(t, nil)

	out := mustRun(t, srv.URL, "process", "initiate", "1", "scan_job")
	if !strings.Contains(out, "scan_job") || !strings.Contains(out, "STARTED") {
		t.Errorf("initiate output:\n%s", out)
	}

	out = mustRun(t, srv.URL, "process", "progress", "1", "scan_job", "--total", "4", "--done", "1")
	if !strings.Contains(out, "1/4 (25%)") {
		t.Errorf("progress output:\n%s", out)
	}

	out = mustRun(t, srv.URL, "process", "progress", "1", "scan_job", "--total", "4", "--done", "2", "--percent", "10")
	if !strings.Contains(out, "2/4 (10%)") {
		t.Errorf("explicit percent must be sent as is:\n%s", out)
	}

	out = mustRun(t, srv.URL, "process", "done", "1", "scan_job")
	if !strings.Contains(out, "DONE") {
		t.Errorf("done output:\n%s", out)
	}

	out = mustRun(t, srv.URL, "--json", "process", "request", "rename_files")
	var adm client.Admission
	if err := json.Unmarshal([]byte(out), &adm); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if adm.JobID != 1 || adm.ProcessCode != "rename_files" || adm.Entry.State != "STARTED" {
		t.Errorf("unexpected admission: %+v", adm)
	}

	out = mustRun(t, srv.URL, "process", "fail", "1", "rename_files", "--reason", "broken scanner")
	if !strings.Contains(out, "FAILED") || !strings.Contains(out, "broken scanner") {
		t.Errorf("fail output:\n%s", out)
	}
}

func TestProcessCommands_Errors(t *testing.T) {
	srv := apitest.New(t, "")

	_, _, err := run(t, srv.URL, "process", "request", "nope")
	if !client.IsCode(err, client.CodeUnknownProcess) {
		t.Errorf("expected unknown process, got %v", err)
	}

	_, _, err = run(t, srv.URL, "process", "request", "rename_files")
	if !client.IsCode(err, client.CodeNotAvailable) {
		t.Errorf("expected not available, got %v", err)
	}

	_, _, err = run(t, srv.URL, "process", "done", "abc", "scan_job")
	if err == nil || !strings.Contains(err.Error(), "invalid job id") {
		t.Errorf("expected invalid job id, got %v", err)
	}

	_, _, err = run(t, srv.URL, "process", "done", "1")
	if err == nil {
		t.Error("expected argument error")
	}
}

func TestJobCommands(t *testing.T) {
	srv := apitest.New(t, "")
	srv.CreateJob(t, map[string]any{"source_dir": "/scans/1"})

	mustRun(t, srv.URL, "job", "metadata", "set", "1", "ocr", "true")
	if out := mustRun(t, srv.URL, "job", "metadata", "get", "1", "ocr"); strings.TrimSpace(out) != "true" {
		t.Errorf("get ocr: %q", out)
	}

	mustRun(t, srv.URL, "job", "metadata", "set", "1", "title", "Old maps")
	if out := mustRun(t, srv.URL, "job", "metadata", "get", "1", "title"); strings.TrimSpace(out) != `"Old maps"` {
		t.Errorf("get title: %q", out)
	}

	if out := mustRun(t, srv.URL, "job", "metadata", "get", "1", "missing"); strings.TrimSpace(out) != "null" {
		t.Errorf("get missing: %q", out)
	}

	_, _, err := run(t, srv.URL, "job", "metadata", "set", "1", "ocr_flow", "unknown")
	if !client.IsCode(err, client.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	mustRun(t, srv.URL, "process", "initiate", "1", "scan_job")

	out := mustRun(t, srv.URL, "job", "show", "1")
	for _, want := range []string{"STARTED", "source_dir", "/scans/1", "Old maps", "scan_job"} {
		if !strings.Contains(out, want) {
			t.Errorf("job show: missing %q in\n%s", want, out)
		}
	}

	out = mustRun(t, srv.URL, "--json", "job", "show", "1")
	var job client.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode json output: %v", err)
	}
	if job.ID != 1 || len(job.History) != 1 || job.Metadata["ocr"] != true {
		t.Errorf("unexpected job: %+v", job)
	}

	_, _, err = run(t, srv.URL, "job", "show", "9")
	if !client.IsCode(err, client.CodeJobNotFound) {
		t.Errorf("expected job not found, got %v", err)
	}
}

func TestCatalogList(t *testing.T) {
	srv := apitest.New(t, "")

	out := mustRun(t, srv.URL, "catalog", "list")
	for _, want := range []string{"scan_job", "unlimited", "rename_files", "ocr_flow", "ocr=true", "littbank"} {
		if !strings.Contains(out, want) {
			t.Errorf("catalog list: missing %q in\n%s", want, out)
		}
	}

	out = mustRun(t, srv.URL, "--json", "catalog", "list")
	var cat client.Catalog
	if err := json.Unmarshal([]byte(out), &cat); err != nil {
		t.Fatalf("decode json output: %v", err)
	}
	if len(cat.Processes) != 4 || len(cat.FlowParameters) != 4 {
		t.Errorf("unexpected catalog: %+v", cat)
	}
}

func TestAPIKeyFlag(t *testing.T) {
	srv := apitest.New(t, "secret")

	_, _, err := run(t, srv.URL, "catalog", "list")
	if !client.IsCode(err, client.CodeUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}

	if _, _, err := run(t, srv.URL, "--api-key", "secret", "catalog", "list"); err != nil {
		t.Errorf("with api key: %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dflow.toml")

	_, stderr, err := run(t, "http://unused", "config", "init", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stderr, "Created") {
		t.Errorf("expected success message, got %q", stderr)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, _, err := run(t, "http://unused", "config", "init", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected already exists, got %v", err)
	}
	if _, _, err := run(t, "http://unused", "config", "init", "--force", path); err != nil {
		t.Errorf("config init --force: %v", err)
	}

	out := mustRun(t, "http://unused", "config", "validate", path)
	if !strings.Contains(out, "rename_files") || !strings.Contains(out, "memory") {
		t.Errorf("validate output:\n%s", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[store]\ndriver = \"sqlite\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, "http://unused", "config", "validate", bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestMetadataValue(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{"true", "true"},
		{"42", "42"},
		{`"quoted"`, `"quoted"`},
		{`{"a":"b"}`, `{"a":"b"}`},
		{"plain text", `"plain text"`},
		{"GUB", `"GUB"`},
	}

	for _, tt := range tests {
		if got := string(metadataValue(tt.arg)); got != tt.want {
			t.Errorf("metadataValue(%q) = %s, want %s", tt.arg, got, tt.want)
		}
	}
}
