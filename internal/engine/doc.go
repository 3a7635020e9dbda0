// Package engine содержит правила каталога процессов.
//
// Включает:
//   - validate.go  — валидация процессов и параметров flow
//   - dag.go       — граф requires между процессами, порядок и циклы
//   - condition.go — условия depends_on на metadata
//   - schema.go    — JSON Schema для значений metadata и параметров flow
//   - template.go  — шаблоны имён файлов ({{ .File.Base }}) для воркера
//
// Engine не хранит состояние job'ов: он отвечает только за
// структуру каталога и проверку значений.
package engine
