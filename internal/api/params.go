package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shaiso/dflow/internal/domain"
)

// maxBodySize — ограничение JSON тела запроса.
const maxBodySize = 1 << 20

// params — параметры запроса: query, form и JSON тело.
//
// Вложенные объекты JSON тела хранятся как JSON строки.
type params struct {
	url.Values
}

func parseParams(r *http.Request) (params, error) {
	if err := r.ParseForm(); err != nil {
		return params{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	p := params{Values: make(url.Values, len(r.Form))}
	for k, v := range r.Form {
		p.Values[k] = v
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" || r.Body == nil {
		return p, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return params{}, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return params{}, fmt.Errorf("%w: invalid json body: %v", domain.ErrValidation, err)
	}

	for k, v := range obj {
		switch t := v.(type) {
		case nil:
		case string:
			p.Set(k, t)
		case json.Number:
			p.Set(k, t.String())
		case bool:
			p.Set(k, strconv.FormatBool(t))
		default:
			raw, err := json.Marshal(t)
			if err != nil {
				return params{}, fmt.Errorf("%w: %s: %v", domain.ErrValidation, k, err)
			}
			p.Set(k, string(raw))
		}
	}
	return p, nil
}

// required возвращает непустой параметр.
func (p params) required(name string) (string, error) {
	v := strings.TrimSpace(p.Get(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return v, nil
}

func (p params) jobID() (int64, error) {
	raw, err := p.required("job_id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid job_id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

func (p params) processCode() (string, error) {
	return p.required("process_code")
}

// nested возвращает поля объекта name: из JSON строки name
// или из пар name[field]=value.
func (p params) nested(name string) (map[string]string, map[string]any, bool, error) {
	if raw := p.Get(name); raw != "" {
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, nil, false, fmt.Errorf("%w: %s must be a JSON object: %v", domain.ErrValidation, name, err)
		}
		return nil, obj, true, nil
	}

	prefix := name + "["
	fields := make(map[string]string)
	for k, v := range p.Values {
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, "]") || len(v) == 0 {
			continue
		}
		field := k[len(prefix) : len(k)-1]
		if field == "" || strings.ContainsAny(field, "[]") {
			return nil, nil, false, fmt.Errorf("%w: unsupported parameter %s", domain.ErrValidation, k)
		}
		fields[field] = v[0]
	}
	if len(fields) == 0 {
		return nil, nil, false, nil
	}
	return fields, nil, true, nil
}

// progress разбирает progress_info.
func (p params) progress() (domain.Progress, error) {
	fields, obj, ok, err := p.nested("progress_info")
	if err != nil {
		return domain.Progress{}, err
	}
	if !ok {
		return domain.Progress{}, fmt.Errorf("%w: progress_info is required", domain.ErrValidation)
	}
	if obj != nil {
		fields = make(map[string]string, len(obj))
		for k, v := range obj {
			fields[k] = fmt.Sprint(v)
		}
	}

	var prog domain.Progress
	if v, ok := fields["total"]; ok {
		if prog.Total, err = strconv.ParseInt(v, 10, 64); err != nil {
			return domain.Progress{}, fmt.Errorf("%w: invalid progress_info[total] %q", domain.ErrValidation, v)
		}
	}
	if v, ok := fields["done"]; ok {
		if prog.Done, err = strconv.ParseInt(v, 10, 64); err != nil {
			return domain.Progress{}, fmt.Errorf("%w: invalid progress_info[done] %q", domain.ErrValidation, v)
		}
	}
	if v, ok := fields["percent_done"]; ok {
		if prog.PercentDone, err = strconv.ParseFloat(v, 64); err != nil {
			return domain.Progress{}, fmt.Errorf("%w: invalid progress_info[percent_done] %q", domain.ErrValidation, v)
		}
	}
	return prog, nil
}

// metadata возвращает JSON значения для update_metadata.
//
// metadata=<json> передаётся как есть; пары metadata[field]=value
// собираются в объект со строковыми значениями.
func (p params) metadata() ([]byte, error) {
	if raw := strings.TrimSpace(p.Get("metadata")); raw != "" {
		return []byte(raw), nil
	}

	fields, _, ok, err := p.nested("metadata")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: metadata is required", domain.ErrValidation)
	}

	return json.Marshal(fields)
}
