package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"folio/internal"
	"folio/internal/auth"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/tracking"
)

func init() {
	// Tests run against the test environment unless told otherwise; the
	// safety check below refuses anything else.
	if os.Getenv("FOLIO_ENV") == "" {
		os.Setenv("FOLIO_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with folio's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all folio models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set FOLIO_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	CleanTables(db, tables)
}

// CleanTables deletes every row of the named tables and resets their ids.
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		return
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes, using the
// same server settings as the binary.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := internal.NewServerConfig(appConfig)
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// IssueTestToken returns a valid admin bearer token for the test config.
func IssueTestToken(t *testing.T) string {
	t.Helper()

	cfg := config.GetConfig()
	token, _, err := auth.IssueToken(cfg.PrivateKey, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

// ============ Fixtures ============

// VisitFixture describes a visit row; zero fields get sensible defaults.
type VisitFixture struct {
	VisitorID        string
	SessionID        string
	City             string
	Country          string
	Region           string
	Mode             string
	Pathname         string
	Referrer         string
	ScreenResolution string
	Latitude         *float64
	Longitude        *float64
	Timestamp        time.Time
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// CreateVisit inserts a visit row directly.
func CreateVisit(t *testing.T, db *gorm.DB, f VisitFixture) tracking.Visit {
	t.Helper()

	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	visit := tracking.Visit{
		VisitorID:        orDefault(f.VisitorID, "visitor-1"),
		SessionID:        orDefault(f.SessionID, "session-1"),
		City:             orDefault(f.City, "Berlin"),
		Country:          orDefault(f.Country, "Germany"),
		Region:           orDefault(f.Region, "Berlin"),
		Latitude:         f.Latitude,
		Longitude:        f.Longitude,
		Mode:             optional(f.Mode),
		Pathname:         optional(f.Pathname),
		Referrer:         optional(f.Referrer),
		ScreenResolution: optional(f.ScreenResolution),
		Timestamp:        f.Timestamp.UTC(),
	}
	require.NoError(t, db.Create(&visit).Error)
	return visit
}

// CreatePageSession inserts a page-session row directly.
func CreatePageSession(t *testing.T, db *gorm.DB, visitorID, sessionID, pathname string, visibleMs int64, scroll int, ts time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&tracking.PageSession{
		VisitorID:     visitorID,
		SessionID:     sessionID,
		Pathname:      pathname,
		VisibleTimeMs: visibleMs,
		TotalTimeMs:   visibleMs,
		ScrollDepth:   scroll,
		Timestamp:     ts.UTC(),
	}).Error)
}

// CreateSectionDuration inserts a section-duration row directly.
func CreateSectionDuration(t *testing.T, db *gorm.DB, visitorID, sessionID, sectionID string, durationMs int64, ts time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&tracking.SectionDuration{
		VisitorID:  visitorID,
		SessionID:  sessionID,
		SectionID:  sectionID,
		DurationMs: durationMs,
		Timestamp:  ts.UTC(),
	}).Error)
}

// CreateInteractionEvent inserts an interaction-event row directly.
func CreateInteractionEvent(t *testing.T, db *gorm.DB, visitorID, sessionID string, eventType tracking.EventType, ts time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&tracking.InteractionEvent{
		VisitorID: visitorID,
		SessionID: sessionID,
		EventType: eventType,
		Timestamp: ts.UTC(),
		CreatedAt: time.Now().UTC(),
	}).Error)
}
