package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/shaiso/dflow/internal/engine"
)

// Ключи metadata, которые читают файловые executor'ы.
const (
	KeySourceDir     = "source_dir"
	KeyTargetDir     = "target_dir"
	KeyRenamePattern = "rename_pattern"
)

// DefaultRenamePattern — имя по умолчанию для rename_files: 0001.tif, 0002.tif, ...
const DefaultRenamePattern = `{{ .File.Index | pad 4 }}{{ .File.Ext }}`

// CopyExecutor копирует файлы из source_dir в target_dir.
type CopyExecutor struct{}

// Execute копирует файлы.
func (e *CopyExecutor) Execute(ctx context.Context, task *Task) error {
	return transfer(ctx, task, copyFile)
}

// MoveExecutor переносит файлы из source_dir в target_dir.
type MoveExecutor struct{}

// Execute переносит файлы.
func (e *MoveExecutor) Execute(ctx context.Context, task *Task) error {
	return transfer(ctx, task, moveFile)
}

// RenameExecutor переименовывает файлы source_dir по шаблону rename_pattern.
//
// Файлы нумеруются в порядке имени, начиная с 1.
type RenameExecutor struct{}

// Execute переименовывает файлы.
func (e *RenameExecutor) Execute(ctx context.Context, task *Task) error {
	dir, err := task.String(KeySourceDir)
	if err != nil {
		return err
	}

	pattern := DefaultRenamePattern
	if v, ok := task.Metadata[KeyRenamePattern]; ok {
		if s, ok := v.AsString(); ok && s != "" {
			pattern = s
		}
	}

	names, err := listFiles(dir)
	if err != nil {
		return err
	}

	targets, err := planRename(dir, names, pattern, engine.NewFileContext(task.JobID, task.ProcessCode, task.Metadata))
	if err != nil {
		return err
	}

	total := int64(len(names))
	task.progress(0, total)

	// Через временные имена: цель одного файла может быть исходным именем другого.
	temps := make([]string, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		temps[i] = filepath.Join(dir, ".dflow-rename-"+strconv.Itoa(i))
		if err := os.Rename(filepath.Join(dir, name), temps[i]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for i := range names {
		if err := os.Rename(temps[i], filepath.Join(dir, targets[i])); err != nil {
			return fmt.Errorf("%s: %w", targets[i], err)
		}
		task.progress(int64(i+1), total)
	}
	return nil
}

// planRename рендерит новые имена и проверяет, что они не пересекаются.
func planRename(dir string, names []string, pattern string, fctx *engine.FileContext) ([]string, error) {
	sources := make(map[string]bool, len(names))
	for _, name := range names {
		sources[name] = true
	}

	targets := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, name := range names {
		target, err := engine.Render(pattern, fctx.WithFile(name, i+1))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, ok := seen[target]; ok {
			return nil, fmt.Errorf("%w: %s and %s both become %s", ErrNameCollision, prev, name, target)
		}
		if !sources[target] {
			if _, err := os.Lstat(filepath.Join(dir, target)); err == nil {
				return nil, fmt.Errorf("%w: %s already exists", ErrNameCollision, target)
			}
		}
		seen[target] = name
		targets[i] = target
	}
	return targets, nil
}

// transfer применяет fn к каждому файлу source_dir, сообщая прогресс.
func transfer(ctx context.Context, task *Task, fn func(from, to string) error) error {
	src, err := task.String(KeySourceDir)
	if err != nil {
		return err
	}
	dst, err := task.String(KeyTargetDir)
	if err != nil {
		return err
	}

	names, err := listFiles(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	total := int64(len(names))
	task.progress(0, total)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		task.progress(int64(i+1), total)
	}
	return nil
}

// listFiles возвращает обычные файлы каталога, отсортированные по имени.
// Подкаталоги и служебные файлы пропускаются.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func moveFile(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	// Разные файловые системы.
	if err := copyFile(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}
