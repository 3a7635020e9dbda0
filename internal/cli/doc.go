// Package cli реализует инструмент командной строки dflow.
//
// # Обзор
//
// CLI — клиентская утилита для операторов. Работает с API через
// internal/client и не импортирует серверные пакеты. Исключение —
// команды config, которые работают с локальным dflow.toml.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: dflow job show 1 --json | jq .history
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - process: request, initiate, done, fail, progress
//   - job: show, metadata get, metadata set
//   - catalog: list
//   - config: init, validate
//
// Каждая группа создаётся через фабричную функцию (NewProcessCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags (--api-url, --api-key, --json).
// NewRootCmd собирает всё дерево.
package cli
