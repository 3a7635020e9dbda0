package engine

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/shaiso/dflow/internal/domain"
)

// Ошибки шаблонов имён файлов.
var (
	ErrTemplateParse  = errors.New("template parse failed")
	ErrTemplateRender = errors.New("template render failed")
)

// FileContext — контекст шаблона имени файла.
//
// Используется воркером для rename_files/move_files:
//   - {{ .Job }}              — ID job'а
//   - {{ .Meta.title }}       — значение metadata
//   - {{ .File.Base }}        — имя файла без расширения
//   - {{ .File.Index | pad 4 }}
type FileContext struct {
	// Job — ID job'а.
	Job int64

	// Process — код выполняемого процесса.
	Process string

	// Meta — metadata job'а в виде map[string]any.
	Meta map[string]any

	// File — текущий файл.
	File FileInfo
}

// FileInfo — описание файла для шаблона.
type FileInfo struct {
	Name  string // имя с расширением
	Base  string // имя без расширения
	Ext   string // расширение с точкой
	Index int    // порядковый номер, начиная с 1
}

// NewFileContext создаёт контекст для job'а и процесса.
func NewFileContext(jobID int64, process string, md domain.Metadata) *FileContext {
	meta := make(map[string]any, len(md))
	for k, v := range md {
		meta[k] = v.Interface()
	}
	return &FileContext{Job: jobID, Process: process, Meta: meta}
}

// WithFile возвращает копию контекста для конкретного файла.
func (c *FileContext) WithFile(name string, index int) *FileContext {
	ext := filepath.Ext(name)
	next := *c
	next.File = FileInfo{
		Name:  name,
		Base:  strings.TrimSuffix(name, ext),
		Ext:   ext,
		Index: index,
	}
	return &next
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// pad — дополняет число нулями слева
	"pad": func(width int, n int) string {
		return fmt.Sprintf("%0*d", width, n)
	},

	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
}

// Render рендерит шаблон имени файла.
//
// Строка без {{ возвращается как есть.
// Результат не может содержать разделитель пути.
func Render(tmpl string, ctx *FileContext) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("%w: empty file name", ErrTemplateRender)
	}
	if strings.ContainsAny(out, `/\`) {
		return "", fmt.Errorf("%w: file name %q contains a path separator", ErrTemplateRender, out)
	}
	return out, nil
}

// CheckTemplate проверяет синтаксис шаблона без рендеринга.
func CheckTemplate(tmpl string) error {
	if !strings.Contains(tmpl, "{{") {
		return nil
	}
	if _, err := template.New("").Funcs(templateFuncs).Parse(tmpl); err != nil {
		return fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return nil
}
