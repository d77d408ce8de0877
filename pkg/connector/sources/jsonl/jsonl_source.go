// Package jsonl is a source with one stream per *.jsonl file in a
// directory. Each line is one JSON object record.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/pool"
	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
	"github.com/ajitpratap0/nebula-dispatch/pkg/state"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

const (
	defaultMaxLineSize = 4 << 20
	fileExt            = ".jsonl"
)

// scanBuffers holds the initial line buffers of file scanners.
var scanBuffers = pool.NewBytes(64 * 1024)

// Source implements dispatch.AsyncSource.
type Source struct{}

// NewSource creates the source.
func NewSource(config.ConnectorConfig) (dispatch.AsyncSource, error) {
	return &Source{}, nil
}

// Spec implements dispatch.AsyncSource.
func (s *Source) Spec(context.Context) (*dispatch.Spec, error) {
	return &dispatch.Spec{
		Name:                "jsonl",
		SupportsIncremental: true,
		ConnectionSpecification: map[string]any{
			"type":     "object",
			"required": []string{"path"},
			"properties": map[string]any{
				"path":          map[string]any{"type": "string", "description": "Directory holding *.jsonl files"},
				"cursor_field":  map[string]any{"type": "string", "description": "Record field used as the incremental cursor"},
				"max_line_size": map[string]any{"type": "integer", "default": defaultMaxLineSize},
			},
		},
	}, nil
}

type options struct {
	dir         string
	cursorField string
	maxLine     int
}

func parseOptions(cfg config.ConnectorConfig) (options, error) {
	o := options{
		dir:         cfg.String("path", ""),
		cursorField: cfg.String("cursor_field", ""),
		maxLine:     cfg.Int("max_line_size", defaultMaxLineSize),
	}
	if o.dir == "" {
		return o, errors.New(errors.ErrorTypeConfig, "path is required")
	}
	return o, nil
}

// Check implements dispatch.AsyncSource.
func (s *Source) Check(_ context.Context, cfg config.ConnectorConfig) (*dispatch.ConnectionStatus, error) {
	o, err := parseOptions(cfg)
	if err != nil {
		return &dispatch.ConnectionStatus{Status: dispatch.CheckFailed, Message: err.Error()}, nil
	}
	info, err := os.Stat(o.dir)
	if err != nil {
		return &dispatch.ConnectionStatus{Status: dispatch.CheckFailed, Message: err.Error()}, nil
	}
	if !info.IsDir() {
		return &dispatch.ConnectionStatus{Status: dispatch.CheckFailed, Message: o.dir + " is not a directory"}, nil
	}
	return &dispatch.ConnectionStatus{Status: dispatch.CheckSucceeded}, nil
}

// Streams implements dispatch.AsyncSource. Streams are sorted by name.
func (s *Source) Streams(_ context.Context, cfg config.ConnectorConfig) ([]stream.Stream, error) {
	o, err := parseOptions(cfg)
	if err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(o.dir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid path")
	}
	sort.Strings(paths)

	out := make([]stream.Stream, 0, len(paths))
	for _, p := range paths {
		fs := &FileStream{
			name:    strings.TrimSuffix(filepath.Base(p), fileExt),
			path:    p,
			maxLine: o.maxLine,
		}
		if o.cursorField != "" {
			fs.cursor = o.cursorField
			out = append(out, &IncrementalFileStream{fs})
			continue
		}
		out = append(out, fs)
	}
	return out, nil
}

// FileStream reads one file as a single slice. A non-empty cursor filters
// records against the state.
type FileStream struct {
	name    string
	path    string
	maxLine int
	cursor  string
}

// IncrementalFileStream is a FileStream that declares its cursor, so
// records at or before the state cursor are skipped.
type IncrementalFileStream struct {
	*FileStream
}

// CursorField implements stream.CursorStream.
func (s *IncrementalFileStream) CursorField() string { return s.cursor }

// Name implements stream.Stream.
func (s *FileStream) Name() string { return s.name }

// Slices implements stream.Stream.
func (s *FileStream) Slices(ctx context.Context, _ stream.State) iter.Seq2[slicing.Slice, error] {
	return (&slicing.ListRouter{CursorField: "file", Values: []any{filepath.Base(s.path)}}).StreamSlices(ctx)
}

// ReadSlice implements stream.Stream.
func (s *FileStream) ReadSlice(ctx context.Context, _ slicing.Slice, st stream.State) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(stream.Record{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open "+s.path))
			return
		}
		defer f.Close()

		var after any
		if s.cursor != "" {
			after = st[s.cursor]
		}

		buf := scanBuffers.Get()
		defer scanBuffers.Put(buf)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(*buf, s.maxLine)
		line := 0
		for scanner.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(stream.Record{}, err)
				return
			}
			raw := scanner.Bytes()
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				yield(stream.Record{}, errors.Wrap(err, errors.ErrorTypeValidation,
					fmt.Sprintf("%s:%d is not a JSON object", filepath.Base(s.path), line)).
					WithDetail("line", line))
				return
			}
			if after != nil {
				if c, ok := state.CompareCursor(data[s.cursor], after); ok && c <= 0 {
					continue
				}
			}
			if !yield(stream.NewRecord(s.name, data), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(stream.Record{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to read "+s.path))
		}
	}
}

// CheckAvailability implements stream.AvailabilityChecker.
func (s *FileStream) CheckAvailability(_ context.Context, logger *zap.Logger) (bool, string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return false, err.Error(), nil
	}
	f.Close()
	logger.Debug("file readable", zap.String("path", s.path))
	return true, "", nil
}

// ErrorDisplayMessage implements stream.ErrorDisplayer.
func (s *FileStream) ErrorDisplayMessage(err error) string {
	if errors.IsType(err, errors.ErrorTypeValidation) {
		return fmt.Sprintf("File %s contains a line that is not a JSON object.", filepath.Base(s.path))
	}
	return ""
}
