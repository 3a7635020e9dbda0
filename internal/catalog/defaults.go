package catalog

import "github.com/shaiso/dflow/internal/domain"

// DefaultProcesses — процессы по умолчанию, если конфигурация их не задаёт.
func DefaultProcesses() []domain.ProcessType {
	return []domain.ProcessType{
		{Code: "scan_job", ManualOnly: true, Position: 1},
		{Code: "rename_files", AllowedConcurrency: 1, Position: 2},
		{Code: "move_files", AllowedConcurrency: 1, Position: 3},
		{Code: "copy_files", AllowedConcurrency: 1, Position: 4},
	}
}

// DefaultParameters — параметры flow по умолчанию.
func DefaultParameters() []domain.FlowParameter {
	return []domain.FlowParameter{
		{Code: "deskew", Type: domain.ParameterBoolean},
		{Code: "crop", Type: domain.ParameterBoolean},
		{Code: "ocr", Type: domain.ParameterBoolean},
		{
			Code:   "ocr_flow",
			Type:   domain.ParameterString,
			Values: []string{"littbank", "lasstod", "GUB"},
			DependsOn: []domain.Condition{
				{Key: "ocr", Value: domain.BoolValue(true)},
			},
		},
	}
}

// Default создаёт каталог по умолчанию.
func Default() *Catalog {
	c, err := New(DefaultProcesses(), DefaultParameters())
	if err != nil {
		panic("catalog: invalid defaults: " + err.Error())
	}
	return c
}
