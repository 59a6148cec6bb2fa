package jobs_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
	"folio/internal/jobs"
	"folio/internal/settings"
	"folio/internal/testsupport"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func TestExtractMMDB(t *testing.T) {
	t.Run("copies the database entry", func(t *testing.T) {
		archive := buildArchive(t, map[string]string{
			"GeoLite2-City_20250101/GeoLite2-City.mmdb": "mmdb-bytes",
		})

		var out bytes.Buffer
		require.NoError(t, jobs.ExtractMMDB(bytes.NewReader(archive), &out))
		assert.Equal(t, "mmdb-bytes", out.String())
	})

	t.Run("fails without a database entry", func(t *testing.T) {
		archive := buildArchive(t, map[string]string{"README.txt": "hello"})

		var out bytes.Buffer
		assert.ErrorIs(t, jobs.ExtractMMDB(bytes.NewReader(archive), &out), jobs.ErrNoMMDB)
	})

	t.Run("fails on non-gzip input", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, jobs.ExtractMMDB(bytes.NewReader([]byte("plain")), &out))
	})
}

func TestGeoLiteUpdaterJob(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	archive := buildArchive(t, map[string]string{"GeoLite2-City.mmdb": "fresh-db"})

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "acct" || pass != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(archive)
	}))
	defer server.Close()

	cfg := &config.Config{GeoDBPath: filepath.Join(t.TempDir(), "geo", "GeoLite2-City.mmdb")}

	t.Run("skips without credentials", func(t *testing.T) {
		job := jobs.NewGeoLiteUpdaterJob(dbManager, logger, cfg).WithDownloadURL(server.URL)
		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("downloads and records the update", func(t *testing.T) {
		cfg.GeoLiteAccountID = "acct"
		cfg.GeoLiteLicenseKey = "key"

		job := jobs.NewGeoLiteUpdaterJob(dbManager, logger, cfg).WithDownloadURL(server.URL)
		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, int32(1), hits.Load())

		content, err := os.ReadFile(cfg.GeoDBPath)
		require.NoError(t, err)
		assert.Equal(t, "fresh-db", string(content))

		assert.WithinDuration(t, time.Now(), settings.GetGeoLiteLastUpdated(db), time.Minute)
	})

	t.Run("skips while the copy is fresh", func(t *testing.T) {
		job := jobs.NewGeoLiteUpdaterJob(dbManager, logger, cfg).WithDownloadURL(server.URL)
		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("reports download failures", func(t *testing.T) {
		require.NoError(t, settings.SetGeoLiteLastUpdated(db, time.Now().Add(-8*24*time.Hour)))
		cfg.GeoLiteLicenseKey = "wrong"

		job := jobs.NewGeoLiteUpdaterJob(dbManager, logger, cfg).WithDownloadURL(server.URL)
		assert.Error(t, job.Run(context.Background()))
	})
}
