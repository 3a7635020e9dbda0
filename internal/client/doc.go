// Package client — HTTP-клиент dflow API.
//
// Используется CLI и воркером. Все запросы идут через GET с query-параметрами,
// как ожидает API. Ответ разбирается из конверта {status, data}: ненулевой
// status.code превращается в *APIError с кодом ошибки API.
//
//	c := client.New("http://localhost:8080", apiKey)
//	adm, err := c.RequestProcess(ctx, "rename_files")
//	if client.IsCode(err, client.CodeNotAvailable) {
//		// работы нет
//	}
//
// Типы ответов дублируются из internal/api, клиент не импортирует сервер.
package client
