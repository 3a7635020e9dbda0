// Package telemetry — логирование и метрики dflow.
//
// Логи пишутся через log/slog: SetupLogger читает LOG_LEVEL и LOG_FORMAT
// и ставит глобальный логгер с атрибутом service. Middleware API кладёт в
// контекст логгер запроса (WithLogger / FromContext).
//
// Metrics реализует domain.EventSink и считает переходы процессов, а также
// admission решения (ObserveAdmission). Gauge запущенных процессов
// сверяется с хранилищем через SetRunning (scheduler.Reconciler).
package telemetry
