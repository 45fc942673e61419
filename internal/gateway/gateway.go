package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/internal/provisioning"
	"github.com/covox/voicedash/internal/usage"
	"github.com/covox/voicedash/pkg/cache"
	"github.com/covox/voicedash/pkg/database"
	"github.com/covox/voicedash/pkg/events"
	"github.com/covox/voicedash/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provisioner executes the tenant provisioning workflow.
type Provisioner interface {
	Provision(ctx context.Context, req provisioning.Request) (*provisioning.Result, error)
}

// UsageService aggregates call records into dashboard metrics.
type UsageService interface {
	Aggregate(ctx context.Context, startUnix, endUnix int64, agentFilter string) (*usage.Summary, error)
	Compare(ctx context.Context, cur, prev elevenlabs.Window, agentFilter string) (*usage.Comparison, error)
}

// IdentityService authenticates users and verifies bearer tokens.
type IdentityService interface {
	Authenticate(ctx context.Context, email, password string) (string, uuid.UUID, error)
	VerifyToken(token string) (uuid.UUID, error)
}

// Directory is the subset of the store the gateway reads and mutates
// outside of provisioning runs.
type Directory interface {
	AssignAgentOrg(ctx context.Context, externalID string, orgID uuid.UUID) error
	GetMembershipOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	GetSubscriptionByOrg(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
	ListOrgs(ctx context.Context) ([]models.Organization, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// ProviderClient is the raw call-log provider surface used by the
// conversation endpoints.
type ProviderClient interface {
	ListConversations(ctx context.Context, w elevenlabs.Window, cursor string) (*elevenlabs.ConversationsPage, error)
	GetConversation(ctx context.Context, id string) (*elevenlabs.ConversationDetail, error)
	GetConversationAudio(ctx context.Context, id string) (*elevenlabs.Audio, error)
}

// Gateway handles API requests
type Gateway struct {
	db          *database.Database
	cache       *cache.Cache
	logger      *zap.Logger
	router      *chi.Mux
	provisioner Provisioner
	usage       UsageService
	identity    IdentityService
	directory   Directory
	provider    ProviderClient
	eventBus    *events.Bus
	adminToken  string
	agentFilter string
}

// NewGateway creates a new API gateway
func NewGateway(
	db *database.Database,
	c *cache.Cache,
	logger *zap.Logger,
	provisioner Provisioner,
	usageSvc UsageService,
	identity IdentityService,
	directory Directory,
	provider ProviderClient,
	eventBus *events.Bus,
	adminToken string,
	agentFilter string,
) *Gateway {
	g := &Gateway{
		db:          db,
		cache:       c,
		logger:      logger,
		router:      chi.NewRouter(),
		provisioner: provisioner,
		usage:       usageSvc,
		identity:    identity,
		directory:   directory,
		provider:    provider,
		eventBus:    eventBus,
		adminToken:  adminToken,
		agentFilter: agentFilter,
	}

	g.setupRoutes()
	return g
}

// setupRoutes configures the HTTP routes
func (g *Gateway) setupRoutes() {
	// Middleware
	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.RealIP)
	g.router.Use(g.loggerMiddleware)
	g.router.Use(g.metricsMiddleware)
	g.router.Use(middleware.Recoverer)
	g.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	g.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.covoxlabs.com"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint
	g.registerMetrics()

	// Health check (no auth required)
	g.router.Get("/health", g.handleHealth)
	g.router.Get("/ready", g.handleReady)

	// Sign-in (no auth required)
	g.router.Post("/auth/sign-in", g.handleSignIn)

	// Tenant dashboard endpoints (require a bearer token)
	g.router.Group(func(r chi.Router) {
		r.Use(g.authMiddleware)

		r.Get("/v1/usage", g.handleGetUsage)
		r.Get("/v1/usage/comparison", g.handleUsageComparison)
		r.Get("/v1/billing", g.handleGetBilling)

		r.Get("/v1/conversations", g.handleListConversations)
		r.Get("/v1/conversations/{conversation_id}", g.handleGetConversation)
		r.Get("/v1/conversations/{conversation_id}/audio", g.handleGetConversationAudio)
	})

	// Admin endpoints
	g.router.Group(func(r chi.Router) {
		r.Use(g.adminAuthMiddleware)

		r.Post("/admin/clients", g.handleCreateClient)
		r.Post("/admin/agents/assign", g.handleAssignAgent)

		r.Get("/admin/orgs", g.handleListOrgs)
		r.Get("/admin/agents", g.handleListAgents)
		r.Get("/admin/subscriptions", g.handleListSubscriptions)
	})
}

// ServeHTTP implements http.Handler
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// StartHealthMetrics starts a background goroutine to update dependency health metrics
func (g *Gateway) StartHealthMetrics(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.updateHealthMetrics(ctx)
			}
		}
	}()
}

func (g *Gateway) updateHealthMetrics(ctx context.Context) {
	dbStatus := 0.0
	if err := g.db.Health(ctx); err == nil {
		dbStatus = 1.0
	}
	dependencyUp.WithLabelValues("postgres").Set(dbStatus)

	redisStatus := 0.0
	if err := g.cache.Health(ctx); err == nil {
		redisStatus = 1.0
	}
	dependencyUp.WithLabelValues("redis").Set(redisStatus)
}

// Middleware implementations

func (g *Gateway) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (g *Gateway) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminToken := r.Header.Get("X-Admin-Token")
		if adminToken == "" {
			g.writeError(w, http.StatusForbidden, "missing admin token")
			return
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(adminToken), []byte(g.adminToken)) != 1 {
			g.logger.Warn("invalid admin token attempt",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path),
			)
			g.writeError(w, http.StatusForbidden, "invalid admin token")
			return
		}

		g.logger.Info("admin action authenticated",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)

		next.ServeHTTP(w, r)
	})
}

// Handler implementations

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.db.Health(ctx); err != nil {
		g.writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	if err := g.cache.Health(ctx); err != nil {
		g.writeError(w, http.StatusServiceUnavailable, "cache not ready")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Utility methods

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeJSON(w, statusCode, map[string]string{"error": message})
}
