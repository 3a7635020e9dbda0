// Package config загружает конфигурацию dflow из TOML файла
// и переменных окружения.
//
// Порядок: значения по умолчанию → файл → переменные окружения.
// Каталог процессов строится из [[processes]] и [[flow_parameters]];
// пустая секция заменяется каталогом по умолчанию.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/engine"
	"github.com/shaiso/dflow/internal/repo"
	"github.com/shaiso/dflow/internal/scheduler"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultPath — путь к файлу конфигурации по умолчанию.
const DefaultPath = "dflow.toml"

// Server — HTTP API.
type Server struct {
	Addr   string `toml:"addr"`
	APIKey string `toml:"api_key"`
}

// Store — хранилище job'ов.
type Store struct {
	Driver string `toml:"driver"` // memory | postgres
	DSN    string `toml:"dsn"`
}

// MQ — RabbitMQ. Пустой URL отключает публикацию событий.
type MQ struct {
	URL string `toml:"url"`
}

// Metrics — сверка метрик с хранилищем.
type Metrics struct {
	Refresh string `toml:"refresh"`
}

// Worker — агент, выполняющий автоматические процессы.
type Worker struct {
	APIURL       string   `toml:"api_url"`
	PollInterval string   `toml:"poll_interval"`
	Processes    []string `toml:"processes"`
}

// Process — запись [[processes]].
type Process struct {
	Code             string         `toml:"code"`
	AllowedProcesses int            `toml:"allowed_processes"`
	Manual           bool           `toml:"manual"`
	DependsOn        map[string]any `toml:"depends_on"`
	Requires         []string       `toml:"requires"`
	Position         int            `toml:"position"`
}

// FlowParameter — запись [[flow_parameters]].
type FlowParameter struct {
	Code      string         `toml:"code"`
	Type      string         `toml:"type"`
	Values    []string       `toml:"values"`
	DependsOn map[string]any `toml:"depends_on"`
}

// Job — фикстура [[jobs]] для memory хранилища.
type Job struct {
	Metadata map[string]any `toml:"metadata"`
}

// Config — конфигурация dflow.
type Config struct {
	Server         Server          `toml:"server"`
	Store          Store           `toml:"store"`
	MQ             MQ              `toml:"mq"`
	Metrics        Metrics         `toml:"metrics"`
	Worker         Worker          `toml:"worker"`
	Processes      []Process       `toml:"processes"`
	FlowParameters []FlowParameter `toml:"flow_parameters"`
	Jobs           []Job           `toml:"jobs"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Server:  Server{Addr: ":8080"},
		Store:   Store{Driver: "memory"},
		Metrics: Metrics{Refresh: scheduler.DefaultSpec},
		Worker: Worker{
			APIURL:       "http://localhost:8080",
			PollInterval: "5s",
		},
	}
}

// Load читает конфигурацию.
//
// path == "" — DFLOW_CONFIG, затем DefaultPath. Отсутствующий файл не ошибка:
// возвращаются значения по умолчанию и exists == false.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved, exists, err = resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

// Parse разбирает конфигурацию из строки. Переменные окружения не читаются.
func Parse(data string) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("DFLOW_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", abs)
	}
	return abs, true, nil
}

// applyEnv применяет переменные окружения поверх файла.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("API_PORT")); v != "" {
		c.Server.Addr = ":" + v
	}
	if v, ok := os.LookupEnv("DFLOW_API_KEY"); ok {
		c.Server.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DB_URL")); v != "" {
		c.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("RABBITMQ_URL")); v != "" {
		c.MQ.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("DFLOW_API_URL")); v != "" {
		c.Worker.APIURL = v
	}
}

// Validate проверяет конфигурацию, включая каталог процессов.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.driver: unsupported driver %q (memory|postgres)", c.Store.Driver)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}

	if err := scheduler.ValidateSpec(c.Metrics.Refresh); err != nil {
		return fmt.Errorf("metrics.refresh: %w", err)
	}

	if _, err := c.PollInterval(); err != nil {
		return err
	}

	if len(c.Jobs) > 0 && c.Store.Driver != "memory" {
		return errors.New("jobs fixtures are supported only with the memory driver")
	}
	for i, j := range c.Jobs {
		if _, err := domain.MetadataFromMap(j.Metadata); err != nil {
			return fmt.Errorf("jobs[%d]: %w", i, err)
		}
	}

	_, err := c.Catalog()
	return err
}

// PollInterval возвращает worker.poll_interval.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Worker.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("worker.poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("worker.poll_interval must be positive, got %s", d)
	}
	return d, nil
}

// Catalog строит каталог процессов.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	processes := catalog.DefaultProcesses()
	if len(c.Processes) > 0 {
		processes = make([]domain.ProcessType, 0, len(c.Processes))
		for i, p := range c.Processes {
			pt, err := p.processType(i)
			if err != nil {
				return nil, err
			}
			processes = append(processes, pt)
		}
	}

	params := catalog.DefaultParameters()
	if len(c.FlowParameters) > 0 {
		params = make([]domain.FlowParameter, 0, len(c.FlowParameters))
		for _, p := range c.FlowParameters {
			fp, err := p.flowParameter()
			if err != nil {
				return nil, err
			}
			params = append(params, fp)
		}
	}

	cat, err := catalog.New(processes, params)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

func (p Process) processType(index int) (domain.ProcessType, error) {
	conds, err := engine.ParseConditions(p.DependsOn)
	if err != nil {
		return domain.ProcessType{}, fmt.Errorf("processes[%s]: %w", p.Code, err)
	}

	pos := p.Position
	if pos == 0 {
		pos = index + 1
	}

	return domain.ProcessType{
		Code:               p.Code,
		AllowedConcurrency: p.AllowedProcesses,
		ManualOnly:         p.Manual,
		DependsOn:          conds,
		Requires:           p.Requires,
		Position:           pos,
	}, nil
}

func (p FlowParameter) flowParameter() (domain.FlowParameter, error) {
	conds, err := engine.ParseConditions(p.DependsOn)
	if err != nil {
		return domain.FlowParameter{}, fmt.Errorf("flow_parameters[%s]: %w", p.Code, err)
	}
	return domain.FlowParameter{
		Code:      p.Code,
		Type:      domain.ParameterType(p.Type),
		Values:    p.Values,
		DependsOn: conds,
	}, nil
}

// SeedJobs создаёт job'ы из [[jobs]]. Возвращает количество созданных.
func (c *Config) SeedJobs(ctx context.Context, store repo.Store) (int, error) {
	for i, j := range c.Jobs {
		md, err := domain.MetadataFromMap(j.Metadata)
		if err != nil {
			return i, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		if _, err := store.CreateJob(ctx, md); err != nil {
			return i, fmt.Errorf("jobs[%d]: create: %w", i, err)
		}
	}
	return len(c.Jobs), nil
}

// CreateSample записывает пример конфигурации в path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample возвращает текст примера конфигурации.
func Sample() string {
	return sampleConfig
}
