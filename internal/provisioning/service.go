package provisioning

import (
	"context"
	"errors"

	"github.com/covox/voicedash/internal/billing"
	"github.com/covox/voicedash/internal/store"
	"github.com/covox/voicedash/pkg/events"
	"github.com/covox/voicedash/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityProvider creates and removes identity records. The identity
// system is external to the store, so it can never share the store's
// transaction and always needs an explicit compensator.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password string) (uuid.UUID, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// TenantStore is the subset of the relational store provisioning needs.
type TenantStore interface {
	CreateOrg(ctx context.Context, name string) (uuid.UUID, error)
	DeleteOrg(ctx context.Context, id uuid.UUID) error
	CreateMembership(ctx context.Context, orgID, userID uuid.UUID, role models.MembershipRole) error
	DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error
	CreateSubscription(ctx context.Context, sub models.Subscription) (uuid.UUID, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	GetAgentByExternalID(ctx context.Context, externalID string) (*models.Agent, error)
	UpsertAgent(ctx context.Context, externalID, name string, orgID uuid.UUID, status models.AgentStatus) error
	RestoreAgent(ctx context.Context, prev models.Agent) error
	DeleteAgentByExternalID(ctx context.Context, externalID string) error
}

// Request is one admin provisioning request.
type Request struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	OrgName   string `json:"orgName"`
	Plan      string `json:"plan"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// Result is returned on a fully successful run.
type Result struct {
	OrgID  uuid.UUID `json:"orgId"`
	UserID uuid.UUID `json:"userId"`
}

// Service turns one admin request into a tenant: identity, organization,
// membership, subscription and agent assignment, created in that order.
// Each step consumes an id produced by the previous one, so the steps are
// strictly sequential. The run is a saga: a step failure undoes the
// committed steps in reverse order before the error is surfaced.
type Service struct {
	identity IdentityProvider
	store    TenantStore
	bus      *events.Bus
	logger   *zap.Logger
}

// NewService creates a provisioning service. bus may be nil.
func NewService(identity IdentityProvider, store TenantStore, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{
		identity: identity,
		store:    store,
		bus:      bus,
		logger:   logger,
	}
}

type compensator struct {
	step string
	undo func(ctx context.Context) error
}

// Provision executes the ordered provisioning steps. Validation happens
// before any step; a validation failure rejects the request wholesale.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	provisioningAttempts.Inc()

	var compensators []compensator
	fail := func(step string, err error) (*Result, error) {
		provisioningFailures.WithLabelValues(step).Inc()
		return nil, s.compensate(ctx, step, err, compensators)
	}

	// Step 1: identity record in the identity provider.
	userID, err := s.identity.CreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return fail("create identity", err)
	}
	if userID == uuid.Nil {
		return fail("create identity", errEmptyID("identity"))
	}
	compensators = append(compensators, compensator{"create identity", func(ctx context.Context) error {
		return s.identity.DeleteUser(ctx, userID)
	}})

	// Step 2: organization row.
	orgID, err := s.store.CreateOrg(ctx, req.OrgName)
	if err != nil {
		return fail("create org", err)
	}
	if orgID == uuid.Nil {
		return fail("create org", errEmptyID("org"))
	}
	compensators = append(compensators, compensator{"create org", func(ctx context.Context) error {
		return s.store.DeleteOrg(ctx, orgID)
	}})

	// Step 3: owner membership.
	if err := s.store.CreateMembership(ctx, orgID, userID, models.RoleOwner); err != nil {
		return fail("create membership", err)
	}
	compensators = append(compensators, compensator{"create membership", func(ctx context.Context) error {
		return s.store.DeleteMembership(ctx, orgID, userID)
	}})

	// Step 4: subscription with the plan constants snapshotted at creation
	// time. These never track later plan changes.
	included, _ := billing.IncludedMinutes(billing.PlanTier(req.Plan))
	subID, err := s.store.CreateSubscription(ctx, models.Subscription{
		OrgID:            orgID,
		Plan:             req.Plan,
		IncludedMinutes:  included,
		OverageRateCents: billing.ProvisioningOverageRateCents,
		MinTermMonths:    billing.MinTermMonths,
	})
	if err != nil {
		return fail("create subscription", err)
	}
	compensators = append(compensators, compensator{"create subscription", func(ctx context.Context) error {
		return s.store.DeleteSubscription(ctx, subID)
	}})

	// Step 5: upsert the agent and link it to the new org. The prior state
	// is captured first so the compensator restores an agent that already
	// existed instead of deleting it.
	prevAgent, err := s.store.GetAgentByExternalID(ctx, req.AgentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail("upsert agent", err)
	}

	agentName := req.AgentName
	if agentName == "" {
		agentName = req.AgentID
	}
	if err := s.store.UpsertAgent(ctx, req.AgentID, agentName, orgID, models.AgentStatusActive); err != nil {
		return fail("upsert agent", err)
	}
	compensators = append(compensators, compensator{"upsert agent", func(ctx context.Context) error {
		if prevAgent != nil {
			return s.store.RestoreAgent(ctx, *prevAgent)
		}
		return s.store.DeleteAgentByExternalID(ctx, req.AgentID)
	}})

	s.logger.Info("tenant provisioned",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", userID.String()),
		zap.String("plan", req.Plan),
		zap.String("agent_id", req.AgentID),
	)
	provisioningSuccesses.Inc()

	if s.bus != nil {
		s.bus.Publish(ctx, events.NewEvent(events.EventTenantProvisioned, orgID.String(), map[string]interface{}{
			"user_id":  userID.String(),
			"plan":     req.Plan,
			"agent_id": req.AgentID,
		}))
	}

	return &Result{OrgID: orgID, UserID: userID}, nil
}

// compensate undoes committed steps in reverse order and wraps the
// triggering error. With no committed steps the error passes through
// unwrapped so a first-step failure reads as a plain failure.
func (s *Service) compensate(ctx context.Context, step string, cause error, compensators []compensator) error {
	if len(compensators) == 0 {
		return cause
	}

	s.logger.Warn("provisioning step failed, compensating",
		zap.String("step", step),
		zap.Int("committed_steps", len(compensators)),
		zap.Error(cause),
	)

	perr := &PartialProvisioningError{Step: step, Err: cause}
	for i := len(compensators) - 1; i >= 0; i-- {
		c := compensators[i]
		if err := c.undo(ctx); err != nil {
			s.logger.Error("compensation failed",
				zap.String("step", c.step),
				zap.Error(err),
			)
			perr.CompensationErrs = append(perr.CompensationErrs, err)
			continue
		}
		perr.Compensated = append(perr.Compensated, c.step)
		compensationsRun.WithLabelValues(c.step).Inc()
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.NewEvent(events.EventProvisioningCompensated, "", map[string]interface{}{
			"failed_step": step,
			"compensated": perr.Compensated,
		}))
	}

	return perr
}

func validate(req Request) error {
	required := []struct {
		field, value string
	}{
		{"email", req.Email},
		{"password", req.Password},
		{"orgName", req.OrgName},
		{"plan", req.Plan},
		{"agentId", req.AgentID},
	}
	for _, f := range required {
		if f.value == "" {
			return &ValidationError{Field: f.field, Message: "is required"}
		}
	}
	if !billing.ValidPlan(req.Plan) {
		return &ValidationError{Field: "plan", Message: "must be one of basic, pro, enterprise"}
	}
	return nil
}

func errEmptyID(what string) error {
	return errors.New(what + " provider returned an empty id")
}
