// Package catalog содержит неизменяемый каталог типов процессов
// и параметров flow.
//
// Каталог создаётся один раз при старте и передаётся явно
// (admission, lifecycle, api). После New он только читается,
// поэтому безопасен для конкурентного использования без блокировок.
package catalog

import (
	"fmt"
	"sort"

	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/engine"
)

// Catalog — каталог процессов.
type Catalog struct {
	processes []domain.ProcessType
	byCode    map[string]int
	params    []domain.FlowParameter
	byParam   map[string]int
	dag       *engine.DAG
	schemas   *engine.SchemaSet
}

// New проверяет и создаёт каталог.
//
// Процессы сортируются по Position (при равенстве сохраняется исходный порядок).
// Ошибки валидации — *engine.ValidationError (errors.Is(err, domain.ErrValidation)).
func New(processes []domain.ProcessType, params []domain.FlowParameter) (*Catalog, error) {
	procs := make([]domain.ProcessType, len(processes))
	for i, p := range processes {
		procs[i] = cloneProcess(p)
	}
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].Position < procs[j].Position
	})

	ps := make([]domain.FlowParameter, len(params))
	for i, p := range params {
		ps[i] = cloneParameter(p)
	}

	if err := engine.Validate(procs, ps); err != nil {
		return nil, err
	}

	dag, err := engine.BuildDAG(procs)
	if err != nil {
		return nil, err
	}

	schemas, err := engine.CompileSchemas(ps)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		processes: procs,
		byCode:    make(map[string]int, len(procs)),
		params:    ps,
		byParam:   make(map[string]int, len(ps)),
		dag:       dag,
		schemas:   schemas,
	}
	for i, p := range procs {
		c.byCode[p.Code] = i
	}
	for i, p := range ps {
		c.byParam[p.Code] = i
	}
	return c, nil
}

// Lookup возвращает тип процесса по коду.
func (c *Catalog) Lookup(code string) (domain.ProcessType, error) {
	i, ok := c.byCode[code]
	if !ok {
		return domain.ProcessType{}, fmt.Errorf("%w: %q", domain.ErrUnknownProcess, code)
	}
	return cloneProcess(c.processes[i]), nil
}

// Processes возвращает все процессы в порядке каталога.
func (c *Catalog) Processes() []domain.ProcessType {
	out := make([]domain.ProcessType, len(c.processes))
	for i, p := range c.processes {
		out[i] = cloneProcess(p)
	}
	return out
}

// Automatic возвращает процессы, которые опрашивают воркеры (не manual).
func (c *Catalog) Automatic() []domain.ProcessType {
	out := make([]domain.ProcessType, 0, len(c.processes))
	for _, p := range c.processes {
		if !p.ManualOnly {
			out = append(out, cloneProcess(p))
		}
	}
	return out
}

// Parameters возвращает параметры flow.
func (c *Catalog) Parameters() []domain.FlowParameter {
	out := make([]domain.FlowParameter, len(c.params))
	for i, p := range c.params {
		out[i] = cloneParameter(p)
	}
	return out
}

// Parameter возвращает параметр flow по коду.
func (c *Catalog) Parameter(code string) (domain.FlowParameter, bool) {
	i, ok := c.byParam[code]
	if !ok {
		return domain.FlowParameter{}, false
	}
	return cloneParameter(c.params[i]), true
}

// Order возвращает коды процессов в топологическом порядке requires.
func (c *Catalog) Order() []string {
	out := make([]string, len(c.dag.Order))
	for i, n := range c.dag.Order {
		out[i] = n.ID
	}
	return out
}

// Next возвращает процессы, которые job может запустить следующим.
//
// Пустой список, если job сейчас выполняет процесс.
func (c *Catalog) Next(job *domain.Job) []string {
	if job.RunningEntry() != nil {
		return []string{}
	}

	completed := make(map[string]bool)
	for _, e := range job.History {
		if e.State == domain.StateDone {
			completed[e.ProcessCode] = true
		}
	}

	out := make([]string, 0)
	for _, n := range c.dag.GetReadyNodes(completed) {
		if job.EligibleFor(*n.Process) {
			out = append(out, n.ID)
		}
	}
	return out
}

// ValidateMetadata разбирает raw как значение metadata по ключу key.
//
// Для параметра flow значение проверяется по JSON Schema параметра,
// а его depends_on — на текущих metadata job'а.
func (c *Catalog) ValidateMetadata(key string, raw []byte, current domain.Metadata) (domain.Value, error) {
	if key == "" {
		return domain.Value{}, fmt.Errorf("%w: metadata key is empty", domain.ErrValidation)
	}

	v, err := c.schemas.ParseValue(key, raw)
	if err != nil {
		return domain.Value{}, err
	}

	if p, ok := c.Parameter(key); ok {
		if unmet := engine.UnmetConditions(p.DependsOn, current); len(unmet) > 0 {
			return domain.Value{}, engine.NewValidationError(key, "depends_on",
				fmt.Sprintf("requires %s = %s", unmet[0].Key, unmet[0].Value), engine.ErrInvalidCondition)
		}
	}

	return v, nil
}

func cloneProcess(p domain.ProcessType) domain.ProcessType {
	if p.DependsOn != nil {
		conds := make([]domain.Condition, len(p.DependsOn))
		for i, c := range p.DependsOn {
			conds[i] = domain.Condition{Key: c.Key, Value: c.Value.Clone()}
		}
		p.DependsOn = conds
	}
	if p.Requires != nil {
		p.Requires = append([]string(nil), p.Requires...)
	}
	return p
}

func cloneParameter(p domain.FlowParameter) domain.FlowParameter {
	if p.Values != nil {
		p.Values = append([]string(nil), p.Values...)
	}
	if p.DependsOn != nil {
		conds := make([]domain.Condition, len(p.DependsOn))
		for i, c := range p.DependsOn {
			conds[i] = domain.Condition{Key: c.Key, Value: c.Value.Clone()}
		}
		p.DependsOn = conds
	}
	return p
}
