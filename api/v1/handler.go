// Package v1 holds the public ingestion endpoints the portfolio client posts to.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/tracking"
)

const (
	errInvalidBody  = "Invalid request body"
	errStoreFailure = "Failed to store record"
)

var errEmptyBody = errors.New("empty request body")

// decodePayload reads the body as JSON. Beacon requests arrive as text/plain
// so anything without a JSON content type is decoded from the raw bytes.
func decodePayload(ctx *cartridge.Context, dst any) error {
	if strings.Contains(strings.ToLower(ctx.Get(fiber.HeaderContentType)), "json") {
		return ctx.BodyParser(dst)
	}

	body := ctx.Body()
	if len(body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, dst)
}

func success(ctx *cartridge.Context) error {
	return ctx.JSON(fiber.Map{"success": true})
}

func failure(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// handleIngestError maps a client error to 400 and anything else to a
// generic 500. Storage details only go to the log.
func handleIngestError(ctx *cartridge.Context, collection string, err error) error {
	var ve *tracking.ValidationError
	if errors.As(err, &ve) {
		ctx.Logger.Debug("Rejected payload",
			slog.String("collection", collection),
			slog.String("reason", ve.Message))
		return failure(ctx, http.StatusBadRequest, ve.Message)
	}

	ctx.Logger.Error("Failed to store record",
		slog.String("collection", collection),
		slog.Any("error", err))
	return failure(ctx, http.StatusInternalServerError, errStoreFailure)
}

func invalidBody(ctx *cartridge.Context, collection string, err error) error {
	ctx.Logger.Debug("Failed to decode payload",
		slog.String("collection", collection),
		slog.Any("error", err))
	tracking.RecordRejected(collection)
	return failure(ctx, http.StatusBadRequest, errInvalidBody)
}

// TrackVisitHandler stores a visit and answers with the resolved city.
func TrackVisitHandler(ctx *cartridge.Context) error {
	var payload tracking.VisitPayload
	if err := decodePayload(ctx, &payload); err != nil {
		return invalidBody(ctx, tracking.CollectionVisits, err)
	}
	if payload.UserAgent == "" {
		payload.UserAgent = ctx.Get(fiber.HeaderUserAgent)
	}

	visit, err := tracking.RecordVisit(ctx.UserContext(), ctx.DBManager, ctx.Logger, &payload, getClientIP(ctx.Ctx))
	if err != nil {
		return handleIngestError(ctx, tracking.CollectionVisits, err)
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"location": visit.City,
	})
}

// TrackLocationHandler attaches precise coordinates to an existing visit.
func TrackLocationHandler(ctx *cartridge.Context) error {
	var payload tracking.PreciseLocationPayload
	if err := decodePayload(ctx, &payload); err != nil {
		return invalidBody(ctx, tracking.CollectionVisits, err)
	}

	updated, err := tracking.UpdatePreciseLocation(ctx.UserContext(), ctx.DBManager, ctx.Logger, &payload)
	if err != nil {
		return handleIngestError(ctx, tracking.CollectionVisits, err)
	}

	ctx.Logger.Debug("Precise location applied", slog.Int64("rows", updated))
	return success(ctx)
}

// TrackSessionHandler stores the summary of one page view.
func TrackSessionHandler(ctx *cartridge.Context) error {
	var payload tracking.PageSessionPayload
	if err := decodePayload(ctx, &payload); err != nil {
		return invalidBody(ctx, tracking.CollectionPageSessions, err)
	}

	if _, err := tracking.RecordPageSession(ctx.UserContext(), ctx.DBManager, ctx.Logger, &payload); err != nil {
		return handleIngestError(ctx, tracking.CollectionPageSessions, err)
	}
	return success(ctx)
}

// TrackSectionsHandler stores a batch of section intervals.
func TrackSectionsHandler(ctx *cartridge.Context) error {
	var payload tracking.SectionDurationsPayload
	if err := decodePayload(ctx, &payload); err != nil {
		return invalidBody(ctx, tracking.CollectionSectionDurations, err)
	}

	stored, err := tracking.RecordSectionDurations(ctx.UserContext(), ctx.DBManager, ctx.Logger, &payload)
	if err != nil {
		return handleIngestError(ctx, tracking.CollectionSectionDurations, err)
	}

	ctx.Logger.Debug("Section durations stored", slog.Int("count", len(stored)))
	return success(ctx)
}

// TrackEventHandler stores one interaction event.
func TrackEventHandler(ctx *cartridge.Context) error {
	var payload tracking.InteractionEventPayload
	if err := decodePayload(ctx, &payload); err != nil {
		return invalidBody(ctx, tracking.CollectionInteractionEvents, err)
	}

	if _, err := tracking.RecordInteractionEvent(ctx.UserContext(), ctx.DBManager, ctx.Logger, &payload); err != nil {
		return handleIngestError(ctx, tracking.CollectionInteractionEvents, err)
	}
	return success(ctx)
}
