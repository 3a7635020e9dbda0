package domain

// Condition — условие на metadata job'а: значение по ключу Key должно быть равно Value.
type Condition struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Holds проверяет условие на metadata.
func (c Condition) Holds(md Metadata) bool {
	v, ok := md[c.Key]
	if !ok {
		return false
	}
	return v.Equal(c.Value)
}

// ProcessType — тип процесса из каталога (scan_job, rename_files, ...).
//
// Неизменяем после загрузки каталога.
type ProcessType struct {
	// Code — уникальный код процесса.
	Code string `json:"code"`

	// AllowedConcurrency — максимум одновременно STARTED записей.
	// 0 — без ограничения.
	AllowedConcurrency int `json:"allowed_processes"`

	// ManualOnly — процесс выполняется оператором,
	// воркеры не опрашивают его автоматически.
	ManualOnly bool `json:"manual"`

	// DependsOn — условия на metadata job'а.
	DependsOn []Condition `json:"depends_on,omitempty"`

	// Requires — коды процессов, которые должны быть DONE до запуска этого.
	Requires []string `json:"requires,omitempty"`

	// Position — порядковый номер в каталоге.
	Position int `json:"position"`
}

// Unlimited возвращает true, если лимит не задан.
func (p ProcessType) Unlimited() bool {
	return p.AllowedConcurrency <= 0
}

// HasCapacity проверяет, можно ли запустить ещё один процесс при running запущенных.
func (p ProcessType) HasCapacity(running int) bool {
	return p.Unlimited() || running < p.AllowedConcurrency
}

// ConditionsHold проверяет все DependsOn на metadata.
func (p ProcessType) ConditionsHold(md Metadata) bool {
	for _, c := range p.DependsOn {
		if !c.Holds(md) {
			return false
		}
	}
	return true
}

// ParameterType — тип параметра flow.
type ParameterType string

const (
	ParameterBoolean ParameterType = "boolean"
	ParameterString  ParameterType = "string"
)

// FlowParameter — параметр обработки job'а (deskew, crop, ocr, ...).
//
// Хранится в metadata по ключу Code.
type FlowParameter struct {
	Code      string        `json:"code"`
	Type      ParameterType `json:"type"`
	Values    []string      `json:"values,omitempty"`
	DependsOn []Condition   `json:"depends_on,omitempty"`
}
