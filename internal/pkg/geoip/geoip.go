package geoip

import (
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"folio/internal/config"
)

// Placeholder values stored when a visit cannot be geolocated.
const (
	Unknown = "Unknown"

	LocalCity    = "Local Development"
	LocalCountry = "Localhost"
	LocalRegion  = "Local"
)

// Location is the coarse position resolved for an IP address.
type Location struct {
	City      string
	Country   string
	Region    string
	Latitude  *float64
	Longitude *float64
}

// UnknownLocation is returned when no lookup is possible.
func UnknownLocation() Location {
	return Location{City: Unknown, Country: Unknown, Region: Unknown}
}

// LocalLocation marks development traffic; reports filter it out.
func LocalLocation() Location {
	return Location{City: LocalCity, Country: LocalCountry, Region: LocalRegion}
}

// IsLocal reports whether a stored city/country pair is the development sentinel.
func IsLocal(city, country string) bool {
	return city == LocalCity || country == LocalCountry
}

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger

	countries = gountries.New()
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB opens the configured GeoLite2 City database.
// Returns nil if the database is not configured or not found (GeoIP is optional).
func InitGeoDB() *geoip2.Reader {
	return OpenGeoDB(config.GetConfig().GeoDBPath)
}

// OpenGeoDB opens the GeoLite2 City database at path, or returns nil.
func OpenGeoDB(path string) *geoip2.Reader {
	if path == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - geolocation disabled")
		}
		return nil
	}

	if absPath, err := filepath.Abs(path); err == nil && logger != nil {
		logger.Debug("GeoIP database path", slog.String("abs_path", absPath))
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if logger != nil {
			logger.Info("GeoLite2 database not found - geolocation disabled",
				slog.String("path", path),
				slog.String("hint", "Set FOLIO_GEOLITE_ACCOUNT_ID and FOLIO_GEOLITE_LICENSE_KEY to download it"))
		}
		return nil
	} else if err != nil {
		if logger != nil {
			logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", path),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", path),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized",
			slog.String("path", path),
			slog.String("db_type", db.Metadata().DatabaseType))
	}
	return db
}

// GetGeoDB returns the GeoLite2 database reader, initializing it if necessary.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB swaps in the database at path (the configured path when
// empty). Call this after downloading a new database file.
func ReloadGeoDB(path string) {
	if path == "" {
		path = config.GetConfig().GeoDBPath
	}

	// Mark the lazy initializer as done so GetGeoDB keeps the reloaded reader.
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = OpenGeoDB(path)

	if geoDB != nil && logger != nil {
		logger.Info("GeoLite2 database reloaded successfully")
	}
}

// IsPrivateAddress reports whether ip is loopback, private or unspecified.
func IsPrivateAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// Lookup resolves ipAddress to a Location. Loopback and private addresses
// map to LocalLocation; any lookup failure maps to UnknownLocation.
func Lookup(ipAddress string) Location {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return UnknownLocation()
	}
	if IsPrivateAddress(ip) {
		return LocalLocation()
	}

	db := GetGeoDB()
	if db == nil {
		return UnknownLocation()
	}

	record, err := db.City(ip)
	if err != nil {
		if logger != nil {
			logger.Debug("GeoIP lookup failed",
				slog.String("ip_address", ipAddress),
				slog.Any("error", err))
		}
		return UnknownLocation()
	}

	loc := UnknownLocation()
	if name := record.City.Names["en"]; name != "" {
		loc.City = name
	}
	if name := record.Country.Names["en"]; name != "" {
		loc.Country = name
	} else if record.Country.IsoCode != "" {
		loc.Country = CountryName(record.Country.IsoCode)
	}
	if len(record.Subdivisions) > 0 {
		if name := record.Subdivisions[0].Names["en"]; name != "" {
			loc.Region = name
		}
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lng := record.Location.Latitude, record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lng
	}
	return loc
}

// CountryName converts an ISO 3166 alpha-2 code into its common English name.
// Unresolvable codes are returned upper-cased.
func CountryName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == "--" {
		return Unknown
	}
	upper := cases.Upper(language.AmericanEnglish).String(code)
	country, err := countries.FindCountryByAlpha(upper)
	if err != nil || country.Name.Common == "" {
		return upper
	}
	return country.Name.Common
}
