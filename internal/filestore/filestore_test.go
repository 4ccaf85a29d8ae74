package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codegrade/marker/internal/filestore"
	"github.com/stretchr/testify/require"
)

func TestStoreAndFetch(t *testing.T) {
	dir := t.TempDir()
	fs, err := filestore.New(dir, "http://files.local/feedback/")
	require.NoError(t, err)

	url, err := fs.Store([]byte("x,y\n1,2\n"), "results.csv")
	require.NoError(t, err)
	require.Equal(t, "http://files.local/feedback/results.csv", url)

	body, err := fs.Fetch("results.csv")
	require.NoError(t, err)
	require.Equal(t, "x,y\n1,2\n", string(body))

	_, err = fs.Fetch("no-such-file.csv")
	require.Error(t, err)
}

func TestStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	fs, err := filestore.New(dir, "http://files.local")
	require.NoError(t, err)

	url, err := fs.Store([]byte("data"), "../../etc/pass wd")
	require.NoError(t, err)
	require.Equal(t, "http://files.local/pass_wd", url)

	_, err = os.Stat(filepath.Join(dir, "pass_wd"))
	require.NoError(t, err)

	_, err = fs.Store([]byte("data"), "...")
	require.Error(t, err)

	_, err = fs.Fetch("../pass_wd")
	require.Error(t, err)
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "files")
	_, err := filestore.New(dir, "http://files.local")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
