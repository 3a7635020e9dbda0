package repo

import (
	"errors"
	"fmt"

	"github.com/shaiso/dflow/internal/domain"
)

// Ошибки хранилищ.
var (
	// ErrUnknownDriver — неизвестный драйвер хранилища в конфигурации.
	ErrUnknownDriver = errors.New("unknown store driver")

	// ErrInvalidState — данные в БД не соответствуют модели.
	ErrInvalidState = errors.New("invalid stored state")
)

// jobNotFound оборачивает domain.ErrJobNotFound с ID.
func jobNotFound(id int64) error {
	return fmt.Errorf("%w: %d", domain.ErrJobNotFound, id)
}

// tooManyRunning оборачивает domain.ErrTooManyRunning с текущим счётчиком.
func tooManyRunning(pt domain.ProcessType, running int) error {
	return fmt.Errorf("%w: %s has %d of %d", domain.ErrTooManyRunning, pt.Code, running, pt.AllowedConcurrency)
}
