package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/internal/provisioning"
	"github.com/covox/voicedash/internal/store"
	"github.com/covox/voicedash/internal/usage"
	"github.com/covox/voicedash/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAdminToken = "admin-secret"

type fakeProvisioner struct {
	result *provisioning.Result
	err    error
	last   provisioning.Request
}

func (f *fakeProvisioner) Provision(_ context.Context, req provisioning.Request) (*provisioning.Result, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeUsage struct {
	summary *usage.Summary
	cmp     *usage.Comparison
	err     error
}

func (f *fakeUsage) Aggregate(_ context.Context, _, _ int64, _ string) (*usage.Summary, error) {
	return f.summary, f.err
}

func (f *fakeUsage) Compare(_ context.Context, _, _ elevenlabs.Window, _ string) (*usage.Comparison, error) {
	return f.cmp, f.err
}

type fakeIdentity struct {
	userID uuid.UUID
}

func (f *fakeIdentity) Authenticate(_ context.Context, email, password string) (string, uuid.UUID, error) {
	return "token-" + email, f.userID, nil
}

func (f *fakeIdentity) VerifyToken(token string) (uuid.UUID, error) {
	if token != "valid-token" {
		return uuid.Nil, errors.New("invalid token")
	}
	return f.userID, nil
}

type fakeDirectory struct {
	orgID     uuid.UUID
	sub       *models.Subscription
	assignErr error
	assigned  []string
}

func (f *fakeDirectory) AssignAgentOrg(_ context.Context, externalID string, _ uuid.UUID) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned = append(f.assigned, externalID)
	return nil
}

func (f *fakeDirectory) GetMembershipOrg(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return f.orgID, nil
}

func (f *fakeDirectory) GetSubscriptionByOrg(_ context.Context, _ uuid.UUID) (*models.Subscription, error) {
	if f.sub == nil {
		return nil, store.ErrNotFound
	}
	return f.sub, nil
}

func (f *fakeDirectory) ListOrgs(_ context.Context) ([]models.Organization, error) {
	return []models.Organization{{Name: "Acme"}}, nil
}

func (f *fakeDirectory) ListAgents(_ context.Context) ([]models.Agent, error) {
	return []models.Agent{}, nil
}

func (f *fakeDirectory) ListSubscriptions(_ context.Context) ([]models.Subscription, error) {
	return []models.Subscription{}, nil
}

type fakeProviderClient struct {
	page     *elevenlabs.ConversationsPage
	detail   *elevenlabs.ConversationDetail
	audio    *elevenlabs.Audio
	audioErr error
	err      error
}

func (f *fakeProviderClient) ListConversations(_ context.Context, w elevenlabs.Window, _ string) (*elevenlabs.ConversationsPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeProviderClient) GetConversation(_ context.Context, _ string) (*elevenlabs.ConversationDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func (f *fakeProviderClient) GetConversationAudio(_ context.Context, _ string) (*elevenlabs.Audio, error) {
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return f.audio, nil
}

type testDeps struct {
	provisioner *fakeProvisioner
	usage       *fakeUsage
	identity    *fakeIdentity
	directory   *fakeDirectory
	provider    *fakeProviderClient
}

func newTestGateway(t *testing.T) (*Gateway, *testDeps) {
	t.Helper()
	deps := &testDeps{
		provisioner: &fakeProvisioner{result: &provisioning.Result{OrgID: uuid.New(), UserID: uuid.New()}},
		usage:       &fakeUsage{summary: &usage.Summary{Durations: []int{}, CallsPerDay: map[string]int{}}},
		identity:    &fakeIdentity{userID: uuid.New()},
		directory:   &fakeDirectory{orgID: uuid.New()},
		provider:    &fakeProviderClient{page: &elevenlabs.ConversationsPage{Conversations: []elevenlabs.Conversation{}}},
	}
	g := NewGateway(nil, nil, zap.NewNop(),
		deps.provisioner, deps.usage, deps.identity, deps.directory, deps.provider,
		nil, testAdminToken, "Support agent")
	return g, deps
}

func doJSON(t *testing.T, g *Gateway, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": testAdminToken}
}

func tenantHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer valid-token"}
}

func validProvisionBody() map[string]string {
	return map[string]string{
		"email":    "owner@example.com",
		"password": "s3cret",
		"orgName":  "Acme Dental",
		"plan":     "pro",
		"agentId":  "agent-1",
	}
}

func TestCreateClientMissingAdminToken(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/admin/clients", validProvisionBody(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateClientWrongAdminToken(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/admin/clients", validProvisionBody(),
		map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateClientMethodNotAllowed(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodGet, "/admin/clients", nil, adminHeaders())
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCreateClientSuccess(t *testing.T) {
	g, deps := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/admin/clients", validProvisionBody(), adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK     bool   `json:"ok"`
		OrgID  string `json:"orgId"`
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, deps.provisioner.result.OrgID.String(), resp.OrgID)
	assert.Equal(t, deps.provisioner.result.UserID.String(), resp.UserID)
	assert.Equal(t, "pro", deps.provisioner.last.Plan)
}

func TestCreateClientValidationError(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provisioner.err = &provisioning.ValidationError{Field: "plan", Message: "must be one of basic, pro, enterprise"}

	w := doJSON(t, g, http.MethodPost, "/admin/clients", map[string]string{"plan": "gold"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "plan")
}

func TestCreateClientDownstreamFailure(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provisioner.err = &provisioning.PartialProvisioningError{
		Step: "create subscription",
		Err:  errors.New("insert failed"),
	}

	w := doJSON(t, g, http.MethodPost, "/admin/clients", validProvisionBody(), adminHeaders())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "create subscription")
	assert.Contains(t, w.Body.String(), "insert failed")
}

func TestGetUsageRequiresAuth(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodGet, "/v1/usage?start=0&end=100", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, g, http.MethodGet, "/v1/usage?start=0&end=100", nil,
		map[string]string{"Authorization": "Bearer bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetUsageBadParams(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodGet, "/v1/usage?start=abc&end=100", nil, tenantHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, g, http.MethodGet, "/v1/usage", nil, tenantHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsageSuccess(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.usage.summary = &usage.Summary{
		TotalSeconds: 250,
		TotalCalls:   3,
		AvgSeconds:   250.0 / 3.0,
		Durations:    []int{30, 90, 130},
		CallsPerDay:  map[string]int{"2024-01-15": 2, "2024-01-16": 1},
	}

	w := doJSON(t, g, http.MethodGet, "/v1/usage?start=0&end=100", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp usage.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 250, resp.TotalSeconds)
	assert.Equal(t, 3, resp.TotalCalls)
	assert.Equal(t, []int{30, 90, 130}, resp.Durations)
}

func TestGetUsageProviderFailure(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.usage.summary = nil
	deps.usage.err = &elevenlabs.ProviderFetchError{
		Window: elevenlabs.Window{StartUnix: 0, EndUnix: 100},
		Cause:  errors.New("timeout"),
	}

	w := doJSON(t, g, http.MethodGet, "/v1/usage?start=0&end=100", nil, tenantHeaders())
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to fetch conversations", resp["error"])
	assert.Contains(t, resp["details"], "timeout")
}

func TestGetBilling(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.directory.sub = &models.Subscription{
		Plan:             "basic",
		IncludedMinutes:  600,
		OverageRateCents: 25,
	}
	deps.usage.summary = &usage.Summary{
		TotalSeconds: 650 * 60, // 650 minutes
		TotalCalls:   100,
		Durations:    []int{},
		CallsPerDay:  map[string]int{},
	}

	w := doJSON(t, g, http.MethodGet, "/v1/billing", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Plan       string `json:"plan"`
		Evaluation struct {
			OverageMinutes int64   `json:"overageMinutes"`
			OverageCost    string  `json:"overageCost"`
			PercentageUsed float64 `json:"percentageUsed"`
			Status         string  `json:"status"`
		} `json:"evaluation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "basic", resp.Plan)
	assert.Equal(t, int64(50), resp.Evaluation.OverageMinutes)
	assert.Equal(t, "12.5", resp.Evaluation.OverageCost)
	assert.Equal(t, float64(100), resp.Evaluation.PercentageUsed)
	assert.Equal(t, "over-limit", resp.Evaluation.Status)
}

func TestGetBillingNoSubscription(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodGet, "/v1/billing", nil, tenantHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignAgent(t *testing.T) {
	g, deps := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/admin/agents/assign", map[string]string{
		"agentId": "agent-1",
		"orgId":   uuid.NewString(),
	}, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"agent-1"}, deps.directory.assigned)
}

func TestAssignAgentNotFound(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.directory.assignErr = store.ErrNotFound

	w := doJSON(t, g, http.MethodPost, "/admin/agents/assign", map[string]string{
		"agentId": "ghost",
		"orgId":   uuid.NewString(),
	}, adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignAgentBadRequest(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/admin/agents/assign", map[string]string{
		"agentId": "agent-1",
	}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, g, http.MethodPost, "/admin/agents/assign", map[string]string{
		"agentId": "agent-1",
		"orgId":   "not-a-uuid",
	}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConversationsFormatsRecords(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provider.page = &elevenlabs.ConversationsPage{
		Conversations: []elevenlabs.Conversation{
			{ConversationID: "c1", AgentName: "Support agent", StartTimeUnixSecs: 50, CallDurationSecs: 42, MessageCount: 7, CallSuccessful: "success"},
			{ConversationID: "c2", AgentName: "Support agent", StartTimeUnixSecs: 60, CallDurationSecs: 10, CallSuccessful: "failure"},
			{ConversationID: "c3", AgentName: "Support agent", StartTimeUnixSecs: 70, CallDurationSecs: 5},
			{ConversationID: "other", AgentName: "Another agent", StartTimeUnixSecs: 80, CallDurationSecs: 9},
		},
	}

	w := doJSON(t, g, http.MethodGet, "/v1/conversations?start=0&end=100", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Conversations []models.CallRecord `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 3)
	assert.Equal(t, models.EvaluationSuccessful, resp.Conversations[0].Evaluation)
	assert.Equal(t, models.EvaluationFailed, resp.Conversations[1].Evaluation)
	assert.Equal(t, models.EvaluationPending, resp.Conversations[2].Evaluation)
}

func TestGetConversationDetail(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provider.detail = &elevenlabs.ConversationDetail{Summary: "caller asked about billing"}
	deps.provider.audio = &elevenlabs.Audio{ContentType: "audio/mpeg", Data: []byte{1}}

	w := doJSON(t, g, http.MethodGet, "/v1/conversations/c1", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "caller asked about billing", resp["summary"])
	assert.Equal(t, "/v1/conversations/c1/audio", resp["audio_url"])
}

func TestGetConversationDetailAudioMissing(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provider.detail = &elevenlabs.ConversationDetail{Summary: "s"}
	deps.provider.audioErr = errors.New("no audio")

	w := doJSON(t, g, http.MethodGet, "/v1/conversations/c1", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	_, hasAudio := resp["audio_url"]
	assert.False(t, hasAudio)
}

func TestGetConversationAudioPassthrough(t *testing.T) {
	g, deps := newTestGateway(t)
	deps.provider.audio = &elevenlabs.Audio{ContentType: "audio/mpeg", Data: []byte{0xff, 0xfb}}

	w := doJSON(t, g, http.MethodGet, "/v1/conversations/c1/audio", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xfb}, w.Body.Bytes())
}

func TestSignIn(t *testing.T) {
	g, deps := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/auth/sign-in", map[string]string{
		"email":    "owner@example.com",
		"password": "s3cret",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "token-owner@example.com", resp["token"])
	assert.Equal(t, deps.identity.userID.String(), resp["userId"])
}

func TestSignInMissingFields(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodPost, "/auth/sign-in", map[string]string{"email": "a@b.c"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminListOrgs(t *testing.T) {
	g, _ := newTestGateway(t)

	w := doJSON(t, g, http.MethodGet, "/admin/orgs", nil, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")
}
