package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestSource_Streams(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"users.jsonl":  "{\"id\":1}\n{\"id\":2}\n",
		"orders.jsonl": "{\"id\":10}\n",
		"notes.txt":    "ignored",
	})
	src := &Source{}

	streams, err := src.Streams(context.Background(), config.ConnectorConfig{"path": dir})
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "orders", streams[0].Name())
	assert.Equal(t, "users", streams[1].Name())

	var ids []any
	for rec, err := range stream.ReadAll(context.Background(), streams[1], nil) {
		require.NoError(t, err)
		assert.Equal(t, "users", rec.Stream)
		ids = append(ids, rec.Data["id"])
	}
	assert.Equal(t, []any{float64(1), float64(2)}, ids)

	_, err = src.Streams(context.Background(), config.ConnectorConfig{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSource_Incremental(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"events.jsonl": `{"id":1,"ts":"2024-01-01T00:00:00Z"}
{"id":2,"ts":"2024-01-02T00:00:00Z"}

{"id":3,"ts":"2024-01-03T00:00:00Z"}
`,
	})
	cfg := config.ConnectorConfig{"path": dir, "cursor_field": "ts"}
	d := dispatch.New(&Source{}, config.NewDispatchConfig("jsonl"), dispatch.WithLogger(zaptest.NewLogger(t)))

	catalog, err := d.Discover(cfg)
	require.NoError(t, err)
	require.True(t, catalog.Streams[0].Incremental())

	prior := map[string]stream.State{"events": {"ts": "2024-01-01T00:00:00Z"}}
	var ids []any
	var final stream.State
	for msg, err := range d.Read(context.Background(), cfg, catalog, prior) {
		require.NoError(t, err)
		switch msg.Type {
		case dispatch.MessageRecord:
			ids = append(ids, msg.Record.Data["id"])
		case dispatch.MessageState:
			final = msg.State.State
		}
	}
	assert.Equal(t, []any{float64(2), float64(3)}, ids)
	assert.Equal(t, stream.State{"ts": "2024-01-03T00:00:00Z"}, final)
}

func TestSource_BadLine(t *testing.T) {
	dir := writeFiles(t, map[string]string{"broken.jsonl": "{\"id\":1}\nnot json\n"})
	cfg := config.ConnectorConfig{"path": dir}
	d := dispatch.New(&Source{}, nil)

	catalog, err := d.Discover(cfg)
	require.NoError(t, err)

	var records int
	var readErr error
	for msg, err := range d.Read(context.Background(), cfg, catalog, nil) {
		if err != nil {
			readErr = err
			continue
		}
		if msg.Type == dispatch.MessageRecord {
			records++
		}
	}
	assert.Equal(t, 1, records)
	require.Error(t, readErr)
	assert.Equal(t, "File broken.jsonl contains a line that is not a JSON object.", errors.DisplayMessage(readErr))
}

func TestSource_Check(t *testing.T) {
	src := &Source{}
	dir := writeFiles(t, map[string]string{"a.jsonl": ""})

	status, err := src.Check(context.Background(), config.ConnectorConfig{"path": dir})
	require.NoError(t, err)
	assert.True(t, status.Succeeded())

	status, err = src.Check(context.Background(), config.ConnectorConfig{"path": filepath.Join(dir, "a.jsonl")})
	require.NoError(t, err)
	assert.False(t, status.Succeeded())

	status, err = src.Check(context.Background(), config.ConnectorConfig{})
	require.NoError(t, err)
	assert.False(t, status.Succeeded())
}
