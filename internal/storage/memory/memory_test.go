package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threepy/vizserver/pkg/streaming"
)

func props(name string) streaming.Envelope {
	return streaming.NewEnvelope(streaming.TypeSetProps, map[string]any{"name": name})
}

func collect(t *testing.T, b *Backend) []streaming.Envelope {
	t.Helper()
	var out []streaming.Envelope
	require.NoError(t, b.Replay(func(env streaming.Envelope) error {
		out = append(out, env)
		return nil
	}))
	return out
}

func TestAppendReplay_Order(t *testing.T) {
	b := New(Config{})
	require.NoError(t, b.Init())

	require.NoError(t, b.Append(props("a")))
	require.NoError(t, b.Append(props("b")))
	require.NoError(t, b.Append(props("c")))

	got := collect(t, b)
	require.Len(t, got, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, got[i].Payload.(map[string]any)["name"])
	}
	// Replay does not consume.
	assert.Equal(t, 3, b.Len())
}

func TestAppend_MaxEntries(t *testing.T) {
	b := New(Config{MaxEntries: 2})
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, b.Append(props(n)))
	}

	got := collect(t, b)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Payload.(map[string]any)["name"])
	assert.Equal(t, "c", got[1].Payload.(map[string]any)["name"])
}

func TestReplay_StopsOnError(t *testing.T) {
	b := New(Config{})
	require.NoError(t, b.Append(props("a")))
	require.NoError(t, b.Append(props("b")))

	stop := errors.New("stop")
	calls := 0
	err := b.Replay(func(streaming.Envelope) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReset(t *testing.T) {
	b := New(Config{})
	require.NoError(t, b.Append(props("a")))
	require.NoError(t, b.Reset())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, collect(t, b))
}

func TestClose_NoOutputDir(t *testing.T) {
	b := New(Config{})
	require.NoError(t, b.Append(props("a")))
	require.NoError(t, b.Close())
	assert.Empty(t, b.ExportedFilePath())
}

func TestClose_ExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: dir})
	require.NoError(t, b.Append(props("ball")))
	require.NoError(t, b.Close())

	path := b.ExportedFilePath()
	require.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export struct {
		Count    int               `json:"count"`
		Messages []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Messages, 1)
	assert.JSONEq(t, `{"set_props":{"name":"ball"}}`, string(export.Messages[0]))
}

func TestClose_ExportsGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.Append(props("ball")))
	require.NoError(t, b.Close())

	path := b.ExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SceneExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Messages, 1)
	assert.Equal(t, streaming.TypeSetProps, export.Messages[0].Type)
}
