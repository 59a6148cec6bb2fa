package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
	"folio/internal/pkg/geoip"
	"folio/internal/settings"
)

const (
	// GeoLite database is updated weekly by MaxMind
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	// MaxMindDownloadURL serves the GeoLite2 City archive; it takes basic auth
	// with the account id and license key.
	MaxMindDownloadURL = "https://download.maxmind.com/geoip/databases/GeoLite2-City/download?suffix=tar.gz"
)

// ErrNoMMDB is returned when a downloaded archive holds no database file.
var ErrNoMMDB = errors.New("no .mmdb file found in archive")

// GeoLiteUpdaterJob keeps the offline GeoLite2 City database fresh.
type GeoLiteUpdaterJob struct {
	dbManager   cartridge.DBManager
	logger      *slog.Logger
	cfg         *config.Config
	client      *http.Client
	downloadURL string
	now         func() time.Time
}

// NewGeoLiteUpdaterJob creates a new GeoLite updater job
func NewGeoLiteUpdaterJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		dbManager:   dbManager,
		logger:      logger,
		cfg:         cfg,
		client:      &http.Client{Timeout: 2 * time.Minute},
		downloadURL: MaxMindDownloadURL,
		now:         time.Now,
	}
}

// WithDownloadURL points the job at another archive location.
func (j *GeoLiteUpdaterJob) WithDownloadURL(url string) *GeoLiteUpdaterJob {
	j.downloadURL = url
	return j
}

// Run downloads a new database when credentials are configured and the
// current copy is older than GeoLiteUpdateInterval.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection()

	accountID, licenseKey := settings.GetGeoLiteCredentials(db, j.cfg.GeoLiteAccountID, j.cfg.GeoLiteLicenseKey)
	if accountID == "" || licenseKey == "" {
		j.logger.Debug("GeoLite credentials not configured, skipping update")
		return nil
	}

	lastUpdate := settings.GetGeoLiteLastUpdated(db)
	if age := j.now().Sub(lastUpdate); age < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", age))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(ctx, accountID, licenseKey); err != nil {
		return fmt.Errorf("geolite update: %w", err)
	}

	// Visits recorded from now on use the new file.
	geoip.ReloadGeoDB(j.geoDBPath())

	if err := settings.SetGeoLiteLastUpdated(db, j.now()); err != nil {
		j.logger.Error("Failed to record GeoLite update time", slog.Any("error", err))
	}

	j.logger.Info("GeoLite database updated successfully")
	return nil
}

func (j *GeoLiteUpdaterJob) geoDBPath() string {
	if j.cfg.GeoDBPath == "" {
		return filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	return j.cfg.GeoDBPath
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context, accountID, licenseKey string) error {
	geoDBPath := j.geoDBPath()
	if err := os.MkdirAll(filepath.Dir(geoDBPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	req.SetBasicAuth(accountID, licenseKey)

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(geoDBPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := ExtractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}

	return os.Rename(tmp.Name(), geoDBPath)
}

// ExtractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func ExtractMMDB(r io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return ErrNoMMDB
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}
}
