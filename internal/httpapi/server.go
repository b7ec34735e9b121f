// Package httpapi exposes the quote wizard over HTTP. Every route except /health runs for the
// tenant resolved from the request host.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/delivery"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/quotes"
	"github.com/Simplici0/quotewizard/internal/tenant"
	"github.com/Simplici0/quotewizard/internal/tenantconfig"
)

// TenantResolver maps a request host onto a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, host string) (tenant.Tenant, error)
}

// ConfigLoader supplies tenant configuration.
type ConfigLoader interface {
	Rules(ctx context.Context, t tenant.Tenant) ([]pricing.Rule, error)
	Services(ctx context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error)
	FormFields(ctx context.Context, t tenant.Tenant) ([]tenantconfig.FormField, error)
	Invalidate(ctx context.Context, tenantID string) error
}

// QuoteStore persists submitted quotes.
type QuoteStore interface {
	Save(ctx context.Context, rec quotes.Record) (quotes.Record, error)
	List(ctx context.Context, tenantID, query string) ([]quotes.Summary, error)
	Get(ctx context.Context, tenantID, id string) (quotes.Record, error)
	MarkDelivered(ctx context.Context, tenantID, id, crmRecordID string) error
}

// Deliverer sends a submission to the tenant's external systems.
type Deliverer interface {
	Deliver(ctx context.Context, t tenant.Tenant, sub delivery.Submission) ([]delivery.Receipt, error)
}

// Deps are the collaborators of the API.
type Deps struct {
	Tenants   TenantResolver
	Config    ConfigLoader
	Engine    *pricing.Engine
	Quotes    QuoteStore
	Delivery  Deliverer
	Log       *zap.Logger
	Now       func() time.Time
	MaxBodyKB int64
}

type server struct {
	tenants  TenantResolver
	config   ConfigLoader
	engine   *pricing.Engine
	quotes   QuoteStore
	delivery Deliverer
	log      *zap.Logger
	now      func() time.Time
	maxBody  int64
}

// New builds the router.
func New(d Deps) http.Handler {
	s := &server{
		tenants:  d.Tenants,
		config:   d.Config,
		engine:   d.Engine,
		quotes:   d.Quotes,
		delivery: d.Delivery,
		log:      d.Log,
		now:      d.Now,
		maxBody:  d.MaxBodyKB << 10,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("http")
	if s.engine == nil {
		s.engine = pricing.NewEngine(s.log)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxBody <= 0 {
		s.maxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.tenantMiddleware)
		r.Get("/tenant", s.handleTenant)
		r.Get("/form-fields", s.handleFormFields)
		r.Post("/quotes/calculate", s.handleCalculate)
		r.Post("/quotes", s.handleSubmit)
		r.Get("/quotes", s.handleQuotesList)
		r.Get("/quotes/{id}", s.handleQuoteDetail)
		r.Get("/quotes/{id}/text", s.handleQuoteText)
		r.Post("/admin/cache/invalidate", s.handleInvalidate)
	})
	return r
}

type tenantKey struct{}

// tenantMiddleware resolves the tenant from the Host header and stores it in the request context.
func (s *server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := s.tenants.Resolve(r.Context(), r.Host)
		if err != nil {
			s.writeError(w, r, "failed to resolve tenant", err)
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom returns the tenant set by tenantMiddleware.
func tenantFrom(ctx context.Context) tenant.Tenant {
	t, _ := ctx.Value(tenantKey{}).(tenant.Tenant)
	return t
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("host", r.Host),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
