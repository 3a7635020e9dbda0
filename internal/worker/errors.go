package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownProcess — нет executor'а для процесса.
	ErrUnknownProcess = errors.New("no executor for process")

	// ErrMissingMetadata — в metadata job'а нет нужного ключа.
	ErrMissingMetadata = errors.New("missing metadata")

	// ErrNameCollision — два файла получают одно имя при переименовании.
	ErrNameCollision = errors.New("file name collision")

	// ErrNoProcesses — нечего опрашивать.
	ErrNoProcesses = errors.New("no processes to poll")

	// ErrReportFailed — API не принял результат после всех попыток.
	ErrReportFailed = errors.New("report failed")
)
