// Package worker реализует агента, выполняющего файловые процессы.
//
// # Обзор
//
// Worker — клиент dflow API. Он не хранит состояние: какой job взять и
// сколько процессов одного типа может работать одновременно, решает API.
// Worker отвечает за:
//
//   - Опрос process_request для своих процессов (по тикеру)
//   - Выполнение процесса executor'ом по коду процесса
//   - Отчёт о прогрессе через process_progress
//   - Завершение через process_done или process_fail
//
// Несколько воркеров могут опрашивать один API.
//
// # Ключевые компоненты
//
// ## Worker
//
// Создаётся через New(cfg Config) и запускается методом Start(ctx).
//
//	w := worker.New(worker.Config{
//	    API:          client.New(apiURL, apiKey),
//	    PollInterval: 5 * time.Second,
//	    Conn:         mqConn, // опционально
//	    Logger:       logger,
//	})
//	if err := w.Start(ctx); err != nil { ... }
//	defer w.Stop()
//
// Без явного списка Processes воркер берёт из /api/processes все
// автоматические процессы, для которых есть executor.
//
// ## Registry и Executor
//
// Registry сопоставляет код процесса и Executor:
//   - copy_files   — копирует файлы source_dir в target_dir
//   - move_files   — переносит файлы source_dir в target_dir
//   - rename_files — переименовывает файлы source_dir по rename_pattern
//
// Каталоги и шаблон берутся из metadata job'а. Шаблон имени рендерится
// engine.Render, по умолчанию DefaultRenamePattern (0001.tif, 0002.tif, ...).
//
// # Пробуждения
//
// Если задан Conn, воркер слушает очередь processes.wakeups и опрашивает API
// сразу после process.done или process.failed: освободился слот лимита или
// job стал доступен следующему процессу. Без RabbitMQ воркер работает
// только по тикеру.
//
// # Отчёты
//
// process_done и process_fail повторяются с exponential backoff при
// сетевых ошибках и 500. Ответ API с кодом домена окончательный.
package worker
