package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/covox/voicedash/internal/store"
	"github.com/covox/voicedash/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleAssignAgent links a previously-unassigned agent to an organization.
func (g *Gateway) handleAssignAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agentId"`
		OrgID   string `json:"orgId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.OrgID == "" {
		g.writeError(w, http.StatusBadRequest, "agentId and orgId are required")
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid orgId")
		return
	}

	if err := g.directory.AssignAgentOrg(r.Context(), req.AgentID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		g.logger.Error("failed to assign agent", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if g.eventBus != nil {
		g.eventBus.Publish(r.Context(), events.NewEvent(events.EventAgentAssigned, orgID.String(), map[string]interface{}{
			"agent_id": req.AgentID,
		}))
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// handleListOrgs returns all organizations for the admin overview table.
func (g *Gateway) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := g.directory.ListOrgs(r.Context())
	if err != nil {
		g.logger.Error("failed to list orgs", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to list orgs")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{"orgs": orgs})
}

// handleListAgents returns all agents for the admin overview table.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := g.directory.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("failed to list agents", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// handleListSubscriptions returns all subscriptions for the admin overview table.
func (g *Gateway) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := g.directory.ListSubscriptions(r.Context())
	if err != nil {
		g.logger.Error("failed to list subscriptions", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}
