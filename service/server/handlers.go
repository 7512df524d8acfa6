package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/awrenn/colonyfeed/service/colony"
	"github.com/awrenn/colonyfeed/service/config"
	"github.com/awrenn/colonyfeed/service/feed"
)

const maxPotIDLength = 80

var (
	// Funding pot ids are decimal strings of arbitrary-precision integers.
	validPotIDRegex = regexp.MustCompile(`^[0-9]+$`)
)

// handleGetFeed returns a handler that serves the committed feed snapshot.
// GET /api/v1/feed?refresh={bool}
//
// With refresh=true the handler runs a full aggregation cycle before
// answering. Otherwise it returns the committed snapshot immediately and,
// when nothing has been committed yet, kicks off a background cycle so a
// subsequent poll finds the feed ready.
func handleGetFeed(aggregator *feed.Aggregator, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := r.URL.Query().Get("refresh")
		if refresh == "true" || refresh == "1" {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.RefreshTimeout)
			defer cancel()

			events, warnings, err := aggregator.Refresh(ctx)
			if err != nil {
				logger.Error("feed refresh failed", "error", err)
				writeError(w, "failed to refresh feed", http.StatusBadGateway)
				return
			}
			writeJSON(w, feedToResponse(events, warnings, false), http.StatusOK)
			return
		}

		snap := aggregator.Snapshot()
		if len(snap.Events) == 0 && !snap.Loading {
			// Nothing committed yet for this session: start a cycle in the
			// background and report loading. The cycle must not ride on the
			// request context, which dies with this response.
			snap.Loading = true
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
				defer cancel()
				if _, _, err := aggregator.Refresh(ctx); err != nil {
					logger.Error("background feed refresh failed", "error", err)
				}
			}()
		}

		logger.Debug("feed snapshot served",
			"events", len(snap.Events),
			"loading", snap.Loading,
		)
		writeJSON(w, feedToResponse(snap.Events, snap.Warnings, snap.Loading), http.StatusOK)
	})
}

// handleGetRecipient returns a handler that resolves the payout recipient
// behind a funding pot. This is the per-row accessor: rows render without
// it and fill the address in when it arrives.
// GET /api/v1/recipients/{fundingPotId}
func handleGetRecipient(aggregator *feed.Aggregator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		potID := r.PathValue("fundingPotId")

		if err := validatePotID(potID); err != nil {
			logger.Debug("invalid funding pot id", "funding_pot_id", potID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		recipient, err := aggregator.ResolveRecipient(r.Context(), potID)
		if err != nil {
			logger.Error("failed to resolve recipient",
				"funding_pot_id", potID,
				"error", err,
			)
			writeError(w, "failed to resolve recipient", http.StatusBadGateway)
			return
		}

		logger.Debug("recipient resolved", "funding_pot_id", potID, "recipient", recipient)
		writeJSON(w, map[string]string{
			"funding_pot_id": potID,
			"recipient":      recipient,
		}, http.StatusOK)
	})
}

// feedResponse is the JSON response format for the feed.
type feedResponse struct {
	Events   []eventResponse    `json:"events"`
	Warnings []feed.SourceError `json:"warnings,omitempty"`
	Loading  bool               `json:"loading"`
	Count    int                `json:"count"`
}

// eventResponse is the JSON response format for a single feed row.
type eventResponse struct {
	Category         string  `json:"category"`
	PrimaryText      string  `json:"primary_text"`
	DisplayDate      string  `json:"display_date"`
	Timestamp        int64   `json:"timestamp"`
	TimestampUnknown bool    `json:"timestamp_unknown,omitempty"`
	BlockHash        string  `json:"block_hash,omitempty"`
	Role             *string `json:"role,omitempty"`
	DomainID         *string `json:"domain_id,omitempty"`
	Amount           *string `json:"amount,omitempty"`
	Token            *string `json:"token,omitempty"`
	FundingPotID     *string `json:"funding_pot_id,omitempty"`
	UserAddress      *string `json:"user_address,omitempty"`
}

func feedToResponse(events []colony.Event, warnings []feed.SourceError, loading bool) feedResponse {
	resp := feedResponse{
		Events:   make([]eventResponse, len(events)),
		Warnings: warnings,
		Loading:  loading,
		Count:    len(events),
	}
	for i, ev := range events {
		resp.Events[i] = eventResponse{
			Category:         ev.Category.String(),
			PrimaryText:      ev.PrimaryText(),
			DisplayDate:      ev.DisplayDate,
			Timestamp:        ev.Timestamp,
			TimestampUnknown: ev.TimestampUnknown,
			BlockHash:        ev.BlockHash,
			Role:             ev.Role,
			DomainID:         ev.DomainID,
			Amount:           ev.Amount,
			Token:            ev.Token,
			FundingPotID:     ev.FundingPotID,
			UserAddress:      ev.UserAddress,
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validatePotID validates a funding pot identifier.
func validatePotID(potID string) error {
	if potID == "" {
		return errorf("funding pot id is required")
	}
	if len(potID) > maxPotIDLength {
		return errorf("funding pot id too long: maximum length is %d characters", maxPotIDLength)
	}
	if !validPotIDRegex.MatchString(potID) {
		return errorf("invalid funding pot id: must be a decimal number")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
