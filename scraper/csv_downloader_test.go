package scraper

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadExport(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.csv":
			w.Write(big)
		case "/slow.csv":
			time.Sleep(200 * time.Millisecond)
			w.Write(big)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	t.Run("above threshold", func(t *testing.T) {
		d := NewDownloader(time.Second)
		data, err := d.DownloadExport(ctx, srv.URL+"/big.csv", "", 0.001)
		require.NoError(t, err)
		assert.Equal(t, big, data)
	})

	t.Run("at threshold is too small", func(t *testing.T) {
		d := NewDownloader(time.Second)
		_, err := d.DownloadExport(ctx, srv.URL+"/big.csv", "", 0.002)
		assert.ErrorIs(t, err, ErrFileTooSmall)
	})

	t.Run("keeps the local copy when a path is given", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "export.csv")
		d := NewDownloader(time.Second)
		_, err := d.DownloadExport(ctx, srv.URL+"/big.csv", path, 0)
		require.NoError(t, err)
		onDisk, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, onDisk, len(big))
	})

	t.Run("unexpected status", func(t *testing.T) {
		d := NewDownloader(time.Second)
		_, err := d.DownloadExport(ctx, srv.URL+"/broken.csv", "", 0)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("timeout", func(t *testing.T) {
		d := NewDownloader(50 * time.Millisecond)
		_, err := d.DownloadExport(ctx, srv.URL+"/slow.csv", "", 0)
		require.Error(t, err)
		assert.True(t, isTimeout(err))
	})

	t.Run("missing url", func(t *testing.T) {
		d := NewDownloader(time.Second)
		_, err := d.DownloadExport(ctx, "", "", 0)
		assert.Error(t, err)
	})
}
