package iox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowReadAndWrite(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(in, []byte("hello world"), 0644))

	w, err := Open(in)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, uint32(len("hello world")), w.Size())
	assert.Equal(t, []byte("hello"), w.Slice(0, 5))
	assert.Equal(t, []byte("world"), w.Slice(6, 5))

	require.NoError(t, w.CreateOutput(out))
	n, err := w.Write(w.Data())
	require.NoError(t, err)
	assert.Equal(t, len("hello world"), n)
	assert.Equal(t, int64(len("hello world")), w.Written())

	require.NoError(t, w.Close())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func TestWindowWriteAtFixup(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0644))

	w, err := Open(in)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.CreateOutput(out))

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.WriteAt(2, []byte("AB")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("01AB456789"), got)
}

func TestWindowAbortRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0644))

	w, err := Open(in)
	require.NoError(t, err)
	require.NoError(t, w.CreateOutput(out))
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	w.Abort()

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "expected Abort to remove the output file")
}
