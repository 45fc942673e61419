package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/covox/voicedash/internal/provisioning"
	"go.uber.org/zap"
)

// handleCreateClient provisions a new client organization: identity, org,
// owner membership, subscription and agent assignment in one run.
func (g *Gateway) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req provisioning.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.provisioner.Provision(r.Context(), req)
	if err != nil {
		var verr *provisioning.ValidationError
		if errors.As(err, &verr) {
			g.writeError(w, http.StatusBadRequest, verr.Error())
			return
		}

		// Downstream failures surface the triggering step's message.
		g.logger.Error("provisioning failed", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"orgId":  result.OrgID,
		"userId": result.UserID,
	})
}
