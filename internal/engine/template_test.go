package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/dflow/internal/domain"
)

func TestRender_FileName(t *testing.T) {
	md := domain.Metadata{
		"title": domain.StringValue("Röda rummet"),
		"year":  domain.NumberValue(1879),
	}
	ctx := NewFileContext(42, "rename_files", md).WithFile("page.tif", 7)

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain", "cover.tif", "cover.tif"},
		{"job and index", "{{ .Job }}_{{ pad 4 .File.Index }}{{ .File.Ext }}", "42_0007.tif"},
		{"metadata", "{{ .Meta.year }}-{{ .File.Base }}{{ .File.Ext }}", "1879-page.tif"},
		{"lower", "{{ lower .File.Name }}", "page.tif"},
		{"default", "{{ default \"x\" .File.Base }}", "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	ctx := NewFileContext(1, "rename_files", nil).WithFile("a.tif", 1)

	if _, err := Render("{{ .Job", ctx); !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
	if _, err := Render("{{ .Meta.missing }}", ctx); !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender for missing key, got %v", err)
	}
	if _, err := Render("../{{ .File.Name }}", ctx); !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender for path separator, got %v", err)
	}
}

func TestCheckTemplate(t *testing.T) {
	if err := CheckTemplate("{{ .File.Name }}"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckTemplate("{{ if }}"); !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}
