// Package scheduler выполняет периодические задачи сервиса по cron-расписанию.
//
// Reconciler раз в metrics.refresh читает из хранилища количество
// STARTED записей по процессам и выставляет gauge dflow_running_processes.
// Gauge ведётся и по событиям, но после рестарта API с PostgreSQL
// только сверка с хранилищем даёт верное значение.
//
// Использование:
//
//	rec, err := scheduler.New(scheduler.Config{
//	    Store:   store,
//	    Gauge:   metrics,
//	    Spec:    "@every 30s",
//	    Logger:  logger,
//	})
//	rec.Start(ctx)
//	defer rec.Stop()
package scheduler
