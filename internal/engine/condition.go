package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/dflow/internal/domain"
)

// ParseConditions конвертирует таблицу depends_on из конфигурации
// ({ ocr = true }) в отсортированный по ключу список условий.
func ParseConditions(raw map[string]any) ([]domain.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]domain.Condition, 0, len(keys))
	for _, k := range keys {
		v, err := domain.ValueFromInterface(raw[k])
		if err != nil {
			return nil, NewValidationError(k, "depends_on",
				fmt.Sprintf("invalid condition value: %v", err), ErrInvalidCondition)
		}
		conds = append(conds, domain.Condition{Key: k, Value: v})
	}
	return conds, nil
}

// UnmetConditions возвращает условия, которые не выполняются на md.
func UnmetConditions(conds []domain.Condition, md domain.Metadata) []domain.Condition {
	var unmet []domain.Condition
	for _, c := range conds {
		if !c.Holds(md) {
			unmet = append(unmet, c)
		}
	}
	return unmet
}
