package store

import (
	"context"
	"errors"

	"github.com/covox/voicedash/pkg/database"
	"github.com/covox/voicedash/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides insert/upsert/select access to the tenant tables. The
// unique constraint on agents.external_id is the concurrency safety net
// for racing provisioning calls targeting the same agent.
type Store struct {
	db     *database.Database
	logger *zap.Logger
}

// NewStore creates a store over the shared connection pool.
func NewStore(db *database.Database, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CreateOrg inserts a new organization and returns its generated id.
func (s *Store) CreateOrg(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO orgs (name, created_at)
		VALUES ($1, NOW())
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, wrap("create org", err)
	}
	return id, nil
}

// DeleteOrg removes an organization. Saga compensator.
func (s *Store) DeleteOrg(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM orgs WHERE id = $1`, id)
	return wrap("delete org", err)
}

// CreateMembership links a user to an organization with a role.
func (s *Store) CreateMembership(ctx context.Context, orgID, userID uuid.UUID, role models.MembershipRole) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO memberships (org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, NOW())
	`, orgID, userID, role)
	return wrap("create membership", err)
}

// DeleteMembership removes a membership row. Saga compensator.
func (s *Store) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx, `
		DELETE FROM memberships WHERE org_id = $1 AND user_id = $2
	`, orgID, userID)
	return wrap("delete membership", err)
}

// CreateSubscription inserts the billing terms snapshotted for an org.
func (s *Store) CreateSubscription(ctx context.Context, sub models.Subscription) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO subscriptions (org_id, plan, included_minutes, overage_rate_cents, min_term_months, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, sub.OrgID, sub.Plan, sub.IncludedMinutes, sub.OverageRateCents, sub.MinTermMonths).Scan(&id)
	if err != nil {
		return uuid.Nil, wrap("create subscription", err)
	}
	return id, nil
}

// DeleteSubscription removes a subscription. Saga compensator.
func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	return wrap("delete subscription", err)
}

// GetSubscriptionByOrg returns the subscription for an organization.
func (s *Store) GetSubscriptionByOrg(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, org_id, plan, included_minutes, overage_rate_cents, min_term_months, created_at
		FROM subscriptions
		WHERE org_id = $1
	`, orgID).Scan(&sub.ID, &sub.OrgID, &sub.Plan, &sub.IncludedMinutes, &sub.OverageRateCents, &sub.MinTermMonths, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get subscription", err)
	}
	return &sub, nil
}

// UpsertAgent inserts or updates an agent keyed by its external id,
// assigning it to the given organization.
func (s *Store) UpsertAgent(ctx context.Context, externalID, name string, orgID uuid.UUID, status models.AgentStatus) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO agents (external_id, name, org_id, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (external_id)
		DO UPDATE SET name = EXCLUDED.name, org_id = EXCLUDED.org_id, status = EXCLUDED.status
	`, externalID, name, orgID, status)
	return wrap("upsert agent", err)
}

// GetAgentByExternalID returns the agent with the given external id.
func (s *Store) GetAgentByExternalID(ctx context.Context, externalID string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, external_id, name, org_id, status, created_at
		FROM agents
		WHERE external_id = $1
	`, externalID).Scan(&agent.ID, &agent.ExternalID, &agent.Name, &agent.OrgID, &agent.Status, &agent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get agent", err)
	}
	return &agent, nil
}

// RestoreAgent puts an agent back to a previously captured state. Saga
// compensator for UpsertAgent on an agent that already existed.
func (s *Store) RestoreAgent(ctx context.Context, prev models.Agent) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE agents SET name = $2, org_id = $3, status = $4 WHERE external_id = $1
	`, prev.ExternalID, prev.Name, prev.OrgID, prev.Status)
	return wrap("restore agent", err)
}

// DeleteAgentByExternalID removes an agent. Saga compensator for
// UpsertAgent on an agent that the upsert inserted.
func (s *Store) DeleteAgentByExternalID(ctx context.Context, externalID string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM agents WHERE external_id = $1`, externalID)
	return wrap("delete agent", err)
}

// AssignAgentOrg links an existing agent to an organization.
func (s *Store) AssignAgentOrg(ctx context.Context, externalID string, orgID uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE agents SET org_id = $2 WHERE external_id = $1
	`, externalID, orgID)
	if err != nil {
		return wrap("assign agent", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMembershipOrg resolves the organization a user belongs to.
func (s *Store) GetMembershipOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.db.Pool.QueryRow(ctx, `
		SELECT org_id FROM memberships WHERE user_id = $1
	`, userID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, wrap("get membership", err)
	}
	return orgID, nil
}

// ListOrgs returns all organizations, newest first.
func (s *Store) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, name, created_at FROM orgs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrap("list orgs", err)
	}
	defer rows.Close()

	orgs := []models.Organization{}
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, wrap("scan org", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, wrap("list orgs", rows.Err())
}

// ListAgents returns all agents, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, external_id, name, org_id, status, created_at
		FROM agents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrap("list agents", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.ExternalID, &a.Name, &a.OrgID, &a.Status, &a.CreatedAt); err != nil {
			return nil, wrap("scan agent", err)
		}
		agents = append(agents, a)
	}
	return agents, wrap("list agents", rows.Err())
}

// ListSubscriptions returns all subscriptions, newest first.
func (s *Store) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, org_id, plan, included_minutes, overage_rate_cents, min_term_months, created_at
		FROM subscriptions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrap("list subscriptions", err)
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.OrgID, &sub.Plan, &sub.IncludedMinutes, &sub.OverageRateCents, &sub.MinTermMonths, &sub.CreatedAt); err != nil {
			return nil, wrap("scan subscription", err)
		}
		subs = append(subs, sub)
	}
	return subs, wrap("list subscriptions", rows.Err())
}
