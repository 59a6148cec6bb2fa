// Package settings stores small runtime key/value state, such as when the
// GeoLite database was last refreshed.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys
const (
	KeyGeoLiteAccountID   = "geolite_account_id"
	KeyGeoLiteLicenseKey  = "geolite_license_key"
	KeyGeoLiteLastUpdated = "geolite_last_updated"
)

// ErrSettingNotFound is returned when a key has never been written.
var ErrSettingNotFound = gorm.ErrRecordNotFound

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// CreateOrUpdateSetting upserts a setting in a single write.
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	if key == "" {
		return errors.New("setting key cannot be empty")
	}

	setting := Setting{Key: key, Value: value}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetGeoLiteCredentials returns stored GeoLite credentials, falling back to the
// supplied defaults (usually from the environment) for any missing value.
func GetGeoLiteCredentials(db *gorm.DB, defaultAccountID, defaultLicenseKey string) (accountID string, licenseKey string) {
	accountID, _ = GetSetting(db, KeyGeoLiteAccountID)
	licenseKey, _ = GetSetting(db, KeyGeoLiteLicenseKey)
	if accountID == "" {
		accountID = defaultAccountID
	}
	if licenseKey == "" {
		licenseKey = defaultLicenseKey
	}
	return accountID, licenseKey
}

// SaveGeoLiteCredentials saves GeoLite account ID and license key
func SaveGeoLiteCredentials(db *gorm.DB, accountID string, licenseKey string) error {
	if err := CreateOrUpdateSetting(db, KeyGeoLiteAccountID, strings.TrimSpace(accountID)); err != nil {
		return fmt.Errorf("failed to save GeoLite account ID: %w", err)
	}
	if err := CreateOrUpdateSetting(db, KeyGeoLiteLicenseKey, strings.TrimSpace(licenseKey)); err != nil {
		return fmt.Errorf("failed to save GeoLite license key: %w", err)
	}
	return nil
}

// GetGeoLiteLastUpdated returns when the GeoLite database was last
// downloaded, or the zero time if it never was.
func GetGeoLiteLastUpdated(db *gorm.DB) time.Time {
	value, err := GetSetting(db, KeyGeoLiteLastUpdated)
	if err != nil || value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetGeoLiteLastUpdated records a successful GeoLite download.
func SetGeoLiteLastUpdated(db *gorm.DB, t time.Time) error {
	return CreateOrUpdateSetting(db, KeyGeoLiteLastUpdated, t.UTC().Format(time.RFC3339))
}
