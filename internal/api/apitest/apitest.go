// Package apitest поднимает API поверх MemoryStore для тестов клиентов.
package apitest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/dflow/internal/admission"
	"github.com/shaiso/dflow/internal/api"
	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/lifecycle"
	"github.com/shaiso/dflow/internal/repo"
)

// Server — тестовый API.
type Server struct {
	*httptest.Server
	Store   *repo.MemoryStore
	Catalog *catalog.Catalog
}

// New запускает API с каталогом по умолчанию. Сервер закрывается в t.Cleanup.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()

	cat := catalog.Default()
	store := repo.NewMemoryStore()

	h := api.NewHandler(api.Config{
		Admission: admission.New(admission.Config{Catalog: cat, Store: store}),
		Lifecycle: lifecycle.New(lifecycle.Config{Catalog: cat, Store: store}),
		Catalog:   cat,
		APIKey:    apiKey,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &Server{Server: srv, Store: store, Catalog: cat}
}

// CreateJob создаёт job с metadata.
func (s *Server) CreateJob(t testing.TB, md map[string]any) *domain.Job {
	t.Helper()

	meta, err := domain.MetadataFromMap(md)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	job, err := s.Store.CreateJob(context.Background(), meta)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// Job читает job из хранилища.
func (s *Server) Job(t testing.TB, id int64) *domain.Job {
	t.Helper()

	job, err := s.Store.FindJob(context.Background(), id)
	if err != nil {
		t.Fatalf("find job %d: %v", id, err)
	}
	return job
}
