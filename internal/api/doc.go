// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (admission, lifecycle, каталог, метрики)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (recovery, logging, api key)
//   - response.go        — конверт ответа и коды ошибок
//   - params.go          — разбор параметров (query, form, JSON body)
//   - dto.go             — Data Transfer Objects
//   - process_handler.go — /api/process_*
//   - job_handler.go     — /api/jobs, metadata, каталог
//
// Все ответы имеют вид
//
//	{"status": {"code": 0}, "data": {...}}
//	{"status": {"code": -1, "error": {"code": 104, "message": "..."}}}
//
// Доменные ошибки возвращаются с HTTP 200.
package api
