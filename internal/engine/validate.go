package engine

import (
	"fmt"

	"github.com/shaiso/dflow/internal/domain"
)

// Допустимые типы параметров flow.
var validParameterTypes = map[domain.ParameterType]bool{
	domain.ParameterBoolean: true,
	domain.ParameterString:  true,
}

// Validate выполняет полную валидацию каталога.
//
// Проверяет:
// - Наличие процессов
// - Уникальность кодов процессов и параметров
// - Неотрицательность allowed_processes
// - Типы параметров
// - Ссылки requires и отсутствие циклов (делегируется DAG)
func Validate(processes []domain.ProcessType, params []domain.FlowParameter) error {
	if len(processes) == 0 {
		return ErrEmptyCatalog
	}

	codes := make(map[string]bool, len(processes))
	for i := range processes {
		if err := ValidateProcess(&processes[i], codes); err != nil {
			return err
		}
	}

	paramCodes := make(map[string]bool, len(params))
	for i := range params {
		if err := ValidateParameter(&params[i], paramCodes); err != nil {
			return err
		}
	}

	if _, err := BuildDAG(processes); err != nil {
		return err
	}

	return nil
}

// ValidateProcess валидирует один тип процесса.
// codes — уже встреченные коды (для проверки уникальности).
func ValidateProcess(p *domain.ProcessType, codes map[string]bool) error {
	if p.Code == "" {
		return NewValidationError("", "code", "process has empty code", ErrEmptyCode)
	}

	if codes[p.Code] {
		return NewValidationError(p.Code, "code",
			fmt.Sprintf("duplicate process code: %s", p.Code), ErrDuplicateCode)
	}
	codes[p.Code] = true

	if p.AllowedConcurrency < 0 {
		return NewValidationError(p.Code, "allowed_processes",
			fmt.Sprintf("allowed_processes is %d", p.AllowedConcurrency), ErrInvalidConcurrency)
	}

	return validateConditions(p.Code, p.DependsOn)
}

// ValidateParameter валидирует один параметр flow.
func ValidateParameter(p *domain.FlowParameter, codes map[string]bool) error {
	if p.Code == "" {
		return NewValidationError("", "code", "flow parameter has empty code", ErrEmptyCode)
	}

	if codes[p.Code] {
		return NewValidationError(p.Code, "code",
			fmt.Sprintf("duplicate flow parameter: %s", p.Code), ErrDuplicateCode)
	}
	codes[p.Code] = true

	if !validParameterTypes[p.Type] {
		return NewValidationError(p.Code, "type",
			fmt.Sprintf("unknown parameter type: %q", p.Type), ErrUnknownParameterType)
	}

	if p.Type == domain.ParameterBoolean && len(p.Values) > 0 {
		return NewValidationError(p.Code, "values",
			"boolean parameter cannot list values", ErrUnknownParameterType)
	}

	return validateConditions(p.Code, p.DependsOn)
}

func validateConditions(code string, conds []domain.Condition) error {
	for _, c := range conds {
		if c.Key == "" {
			return NewValidationError(code, "depends_on", "condition has empty key", ErrInvalidCondition)
		}
		if !c.Value.IsValid() {
			return NewValidationError(code, "depends_on",
				fmt.Sprintf("condition %s has no value", c.Key), ErrInvalidCondition)
		}
	}
	return nil
}
