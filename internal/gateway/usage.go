package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/covox/voicedash/internal/billing"
	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/internal/store"
	"go.uber.org/zap"
)

// parseWindow reads a [start, end) epoch-second window from query params.
func parseWindow(r *http.Request, startKey, endKey string) (elevenlabs.Window, error) {
	start, err := strconv.ParseInt(r.URL.Query().Get(startKey), 10, 64)
	if err != nil {
		return elevenlabs.Window{}, errors.New(startKey + " must be epoch seconds")
	}
	end, err := strconv.ParseInt(r.URL.Query().Get(endKey), 10, 64)
	if err != nil {
		return elevenlabs.Window{}, errors.New(endKey + " must be epoch seconds")
	}
	return elevenlabs.Window{StartUnix: start, EndUnix: end}, nil
}

// currentMonthWindow is the default billing window: start of the current
// UTC month up to now.
func currentMonthWindow() elevenlabs.Window {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return elevenlabs.Window{StartUnix: start.Unix(), EndUnix: now.Unix()}
}

// handleGetUsage aggregates call records for the requested window.
func (g *Gateway) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, "start", "end")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := g.usage.Aggregate(r.Context(), window.StartUnix, window.EndUnix, g.agentFilter)
	if err != nil {
		g.logger.Error("usage aggregation failed",
			zap.Int64("start", window.StartUnix),
			zap.Int64("end", window.EndUnix),
			zap.Error(err),
		)
		g.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch conversations",
			"details": err.Error(),
		})
		return
	}

	g.writeJSON(w, http.StatusOK, summary)
}

// handleUsageComparison aggregates two windows side by side for the trend
// widgets. The two lookups run concurrently.
func (g *Gateway) handleUsageComparison(w http.ResponseWriter, r *http.Request) {
	cur, err := parseWindow(r, "start", "end")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prev, err := parseWindow(r, "prevStart", "prevEnd")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmp, err := g.usage.Compare(r.Context(), cur, prev, g.agentFilter)
	if err != nil {
		g.logger.Error("usage comparison failed", zap.Error(err))
		g.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch conversations",
			"details": err.Error(),
		})
		return
	}

	g.writeJSON(w, http.StatusOK, cmp)
}

// handleGetBilling evaluates the caller's usage against the terms persisted
// on their subscription. With no window supplied the current month is used.
func (g *Gateway) handleGetBilling(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromContext(r.Context())
	if !ok {
		g.writeError(w, http.StatusUnauthorized, "organization not found in context")
		return
	}

	window := currentMonthWindow()
	if r.URL.Query().Get("start") != "" || r.URL.Query().Get("end") != "" {
		var err error
		window, err = parseWindow(r, "start", "end")
		if err != nil {
			g.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sub, err := g.directory.GetSubscriptionByOrg(r.Context(), orgID)
	if errors.Is(err, store.ErrNotFound) {
		g.writeError(w, http.StatusNotFound, "no subscription for organization")
		return
	}
	if err != nil {
		g.logger.Error("subscription lookup failed", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary, err := g.usage.Aggregate(r.Context(), window.StartUnix, window.EndUnix, g.agentFilter)
	if err != nil {
		g.logger.Error("usage aggregation failed", zap.Error(err))
		g.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch conversations",
			"details": err.Error(),
		})
		return
	}

	minutesUsed := float64(summary.TotalSeconds) / 60
	evaluation := billing.Evaluate(minutesUsed, sub.IncludedMinutes, sub.OverageRateCents)

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":            sub.Plan,
		"evaluation":      evaluation,
		"durationBuckets": summary.Buckets(),
		"callsPerDay":     summary.CallsPerDay,
		"incomplete":      summary.Incomplete,
		// Illustrative figure for the estimate widget; decoupled from the
		// subscription's persisted rate on purpose.
		"estimatedOverageCost": billing.EstimateDisplayCost(evaluation.OverageMinutes),
	})
}
