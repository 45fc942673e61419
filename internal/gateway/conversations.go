package gateway

import (
	"net/http"

	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/pkg/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// evaluationFromProvider maps the provider's call outcome to the tri-state
// the dashboard shows. Anything unknown or missing reads as pending.
func evaluationFromProvider(callSuccessful string) models.Evaluation {
	switch callSuccessful {
	case "success":
		return models.EvaluationSuccessful
	case "failure", "fail":
		return models.EvaluationFailed
	default:
		return models.EvaluationPending
	}
}

// handleListConversations returns the formatted conversation list for the
// caller's agent within a window.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, "start", "end")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records := []models.CallRecord{}
	cursor := ""
	for {
		page, err := g.provider.ListConversations(r.Context(), window, cursor)
		if err != nil {
			g.logger.Error("conversation list failed", zap.Error(err))
			g.writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": err.Error(),
			})
			return
		}

		for _, c := range page.Conversations {
			if c.AgentName != g.agentFilter {
				continue
			}
			records = append(records, models.CallRecord{
				ID:           c.ConversationID,
				AgentName:    c.AgentName,
				StartUnix:    c.StartUnix(),
				DurationSecs: c.CallDurationSecs,
				MessageCount: c.MessageCount,
				Evaluation:   evaluationFromProvider(c.CallSuccessful),
			})
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": records})
}

// handleGetConversation returns the detail view for one conversation. The
// detail record and the audio availability are fetched concurrently, the
// way the dashboard consumed them.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation_id")
	if id == "" {
		g.writeError(w, http.StatusBadRequest, "missing conversation ID")
		return
	}

	type detailResult struct {
		detail *elevenlabs.ConversationDetail
		err    error
	}
	type audioResult struct {
		audio *elevenlabs.Audio
		err   error
	}

	detailCh := make(chan detailResult, 1)
	audioCh := make(chan audioResult, 1)

	go func() {
		d, err := g.provider.GetConversation(r.Context(), id)
		detailCh <- detailResult{d, err}
	}()
	go func() {
		a, err := g.provider.GetConversationAudio(r.Context(), id)
		audioCh <- audioResult{a, err}
	}()

	dres, ares := <-detailCh, <-audioCh
	if dres.err != nil {
		g.logger.Error("conversation detail failed", zap.String("conversation_id", id), zap.Error(dres.err))
		g.writeError(w, http.StatusInternalServerError, dres.err.Error())
		return
	}

	resp := map[string]interface{}{
		"summary":    dres.detail.Summary,
		"transcript": dres.detail.Transcript,
		"metadata":   dres.detail.Metadata,
	}
	// Audio is best-effort: the detail page renders without it.
	if ares.err == nil {
		resp["audio_url"] = "/v1/conversations/" + id + "/audio"
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// handleGetConversationAudio streams the recorded call audio.
func (g *Gateway) handleGetConversationAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation_id")
	if id == "" {
		g.writeError(w, http.StatusBadRequest, "missing conversation ID")
		return
	}

	audio, err := g.provider.GetConversationAudio(r.Context(), id)
	if err != nil {
		g.logger.Error("conversation audio failed", zap.String("conversation_id", id), zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to fetch audio")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}
