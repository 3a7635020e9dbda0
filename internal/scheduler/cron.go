package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec — расписание сверки по умолчанию.
const DefaultSpec = "@every 30s"

// specParser принимает 5-польные выражения и дескрипторы (@every, @hourly).
var specParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSpec разбирает расписание.
func ParseSpec(spec string) (cron.Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// ValidateSpec проверяет расписание без создания планировщика.
func ValidateSpec(spec string) error {
	_, err := ParseSpec(spec)
	return err
}

// NextRun возвращает время следующего запуска после from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
