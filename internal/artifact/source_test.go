package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourceOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(`{"kind":"x"}`), 0o600))

	src := FileSource{Dir: dir}

	data, err := src.Open(context.Background(), "model.json")
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"x"}`, string(data))

	abs, err := FileSource{Dir: "/nowhere"}.Open(context.Background(), filepath.Join(dir, "model.json"))
	require.NoError(t, err)
	assert.Equal(t, data, abs)
}

func TestFileSourceMissing(t *testing.T) {
	_, err := FileSource{Dir: t.TempDir()}.Open(context.Background(), "label_encoder.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse db url")
}
