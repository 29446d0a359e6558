package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/process"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrFileNotFound = errors.New("file not found")
)

// Upload is one input file placed next to the program.
type Upload struct {
	Name string
	Data io.Reader
}

// Result is the execute response body.
type Result struct {
	Output      string   `json:"output"`
	Files       []string `json:"files"`
	ExecutionID string   `json:"execution_id"`
	Error       bool     `json:"error"`
}

// Execute runs code in a fresh execution directory. Inputs and the source
// file are removed afterwards; whatever else the program wrote is kept for
// File. A failing program is not an error: its stderr becomes the output
// and Error is set.
func (s *Service) Execute(ctx context.Context, language, code string, uploads []Upload) (*Result, error) {
	lang, err := s.language(language)
	if err != nil {
		return nil, err
	}
	for _, u := range uploads {
		if err := checkName(u.Name); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create execution dir: %w", err)
	}
	inputs := map[string]bool{lang.Source: true}
	cleanup := func() {
		for name := range inputs {
			os.Remove(filepath.Join(dir, name))
		}
	}

	for _, u := range uploads {
		inputs[u.Name] = true
		if err := s.save(filepath.Join(dir, u.Name), u.Data); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("%s: %w", u.Name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, lang.Source), []byte(code), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write source: %w", err)
	}

	args := append(append([]string{}, lang.Command[1:]...), lang.Source)
	res := s.runner.Run(ctx, nil, process.Spec{
		Label:   lang.Name,
		Path:    lang.Command[0],
		Args:    args,
		Timeout: s.timeout,
		Dir:     dir,
	})
	cleanup()

	files, err := produced(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if len(files) == 0 {
		os.RemoveAll(dir)
	}

	out := &Result{
		Output:      res.Output,
		Files:       files,
		ExecutionID: id,
		Error:       !res.OK,
	}
	if !res.OK {
		out.Output = strings.TrimPrefix(res.Output, lang.Name+" error: ")
	}
	out.Output = truncate(out.Output, maxOutput)

	s.logger.Info("execution finished",
		zap.String("execution_id", id),
		zap.String("language", lang.Name),
		zap.Bool("error", out.Error),
		zap.Bool("timed_out", res.TimedOut),
		zap.Int("files", len(files)),
		zap.Duration("elapsed", res.Elapsed))
	return out, nil
}

// save writes r to path, failing once more than the size limit is read.
func (s *Service) save(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > s.maxFileSize {
		return fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxFileSize)
	}
	return nil
}

// produced lists the regular files left in dir. Directories the program
// created are discarded.
func produced(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read execution dir: %w", err)
	}
	files := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
			continue
		}
		os.RemoveAll(filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// File returns the path of a produced file. The caller schedules its
// deletion once the transfer succeeded.
func (s *Service) File(executionID, name string) (string, error) {
	if _, err := uuid.Parse(executionID); err != nil {
		return "", ErrFileNotFound
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, executionID, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrFileNotFound
	}
	return path, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
