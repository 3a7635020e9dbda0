package api

import (
	"log/slog"

	"github.com/shaiso/dflow/internal/admission"
	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/lifecycle"
)

// AdmissionObserver учитывает решения admission (telemetry.Metrics).
type AdmissionObserver interface {
	ObserveAdmission(process string, err error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	admission *admission.Controller
	lifecycle *lifecycle.Manager
	catalog   *catalog.Catalog
	observer  AdmissionObserver
	apiKey    string
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Admission *admission.Controller
	Lifecycle *lifecycle.Manager
	Catalog   *catalog.Catalog
	Observer  AdmissionObserver // опционально
	APIKey    string            // пустой ключ отключает проверку
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		admission: cfg.Admission,
		lifecycle: cfg.Lifecycle,
		catalog:   cfg.Catalog,
		observer:  cfg.Observer,
		apiKey:    cfg.APIKey,
		logger:    logger,
	}
}

func (h *Handler) observeAdmission(code string, err error) {
	if h.observer != nil {
		h.observer.ObserveAdmission(code, err)
	}
}
