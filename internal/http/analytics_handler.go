package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/timeframe"
)

// AnalyticsReportAction returns the aggregated report for ?from=&to=.
// Both bounds accept YYYY-MM-DD or RFC 3339; the default window is the
// trailing ReportDefaultRangeDays ending now.
func AnalyticsReportAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	loc := cfg.ReportLocation()

	parser := timeframe.NewTimeFrameParser(loc)
	tf, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{
		FromDate:         ctx.Query("from"),
		ToDate:           ctx.Query("to"),
		DefaultRangeDays: cfg.ReportDefaultRangeDays,
	})
	if err != nil {
		ctx.Logger.Debug("Invalid report window",
			slog.String("from", ctx.Query("from")),
			slog.String("to", ctx.Query("to")),
			slog.Any("error", err))
		message := "Invalid date range"
		if errors.Is(err, timeframe.ErrInvalidDate) {
			message = "Invalid date"
		}
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}

	db := ctx.DBManager.GetConnection()
	report, err := analytics.BuildReport(ctx.UserContext(), db,
		analytics.Window{From: tf.From, To: tf.To},
		analytics.Options{Location: loc})
	if err != nil {
		ctx.Logger.Error("Failed to build analytics report",
			slog.Time("from", tf.From),
			slog.Time("to", tf.To),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch analytics",
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}
