package domain

import "errors"

// Ошибки ядра. Все они восстановимы: ни одна не оставляет состояние
// частично изменённым, решение о повторе принимает вызывающий.
var (
	// ErrJobNotFound — job не найден.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownProcess — код процесса отсутствует в каталоге.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrTooManyRunning — достигнут лимит одновременных процессов данного типа.
	ErrTooManyRunning = errors.New("too many processes running")

	// ErrNoJobAvailable — нет job, готового к запуску процесса.
	ErrNoJobAvailable = errors.New("no job available")

	// ErrInvalidJobState — job в состоянии, не допускающем операцию.
	ErrInvalidJobState = errors.New("invalid job state")

	// ErrInvalidTransition — недопустимый переход состояния записи.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEntryNotFound — запись процесса не найдена.
	ErrEntryNotFound = errors.New("process entry not found")

	// ErrValidation — некорректные metadata или параметры.
	ErrValidation = errors.New("validation error")
)
