package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/delivery"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/quotes"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

type quoteRequest struct {
	FormData pricing.FormData `json:"formData"`
}

type submitResponse struct {
	ID            string            `json:"id"`
	Quote         pricing.QuoteData `json:"quote"`
	Delivered     bool              `json:"delivered"`
	DeliveryError string            `json:"deliveryError,omitempty"`
}

type tenantResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Subdomain string          `json:"subdomain"`
	Branding  tenant.Branding `json:"branding"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleTenant(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r.Context())
	writeJSON(w, http.StatusOK, tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		Branding:  t.Branding,
	})
}

func (s *server) handleFormFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.config.FormFields(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, "failed to load form fields", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (s *server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	quote, err := s.calculate(r.Context(), tenantFrom(r.Context()), form)
	if err != nil {
		s.writeError(w, r, "failed to calculate quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleSubmit prices the answers, stores the quote and delivers it. A failed delivery is
// reported in the response but does not fail the request.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t := tenantFrom(ctx)

	contact := pricing.NewAnswers(form).Contact()
	if strings.TrimSpace(contact.Email) == "" {
		s.writeError(w, r, "invalid submission", apperr.Input("email is required"))
		return
	}

	quote, err := s.calculate(ctx, t, form)
	if err != nil {
		s.writeError(w, r, "failed to calculate quote", err)
		return
	}

	rec, err := s.quotes.Save(ctx, quotes.Record{
		TenantID:  t.ID,
		CreatedAt: s.now(),
		Contact:   contact,
		Form:      form,
		Quote:     quote,
	})
	if err != nil {
		s.writeError(w, r, "failed to save quote", err)
		return
	}

	resp := submitResponse{ID: rec.ID, Quote: quote}
	if s.delivery != nil {
		resp.Delivered, resp.DeliveryError = s.deliver(ctx, t, rec)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *server) deliver(ctx context.Context, t tenant.Tenant, rec quotes.Record) (bool, string) {
	receipts, err := s.delivery.Deliver(ctx, t, delivery.Submission{
		ID:          rec.ID,
		TenantID:    t.ID,
		SubmittedAt: rec.CreatedAt,
		Contact:     rec.Contact,
		FormData:    rec.Form,
		Quote:       rec.Quote,
	})
	if len(receipts) > 0 {
		if markErr := s.quotes.MarkDelivered(ctx, t.ID, rec.ID, delivery.RecordID(receipts)); markErr != nil {
			s.log.Warn("failed to mark quote delivered", zap.String("quote", rec.ID), zap.Error(markErr))
		}
	}
	if err != nil {
		s.log.Warn("quote stored but not fully delivered",
			zap.String("tenant", t.ID),
			zap.String("quote", rec.ID),
			zap.Error(err),
		)
		return false, err.Error()
	}
	return len(receipts) > 0, ""
}

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	list, err := s.quotes.List(r.Context(), tenantFrom(r.Context()).ID, query)
	if err != nil {
		s.writeError(w, r, "failed to load quotes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "quotes": list})
}

func (s *server) handleQuoteDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := s.quotes.Get(r.Context(), tenantFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "failed to load quote", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleQuoteText(w http.ResponseWriter, r *http.Request) {
	rec, err := s.quotes.Get(r.Context(), tenantFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "failed to load quote", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := quotes.WriteText(w, rec.Contact, rec.Quote); err != nil {
		s.log.Warn("failed to write quote text", zap.String("quote", rec.ID), zap.Error(err))
	}
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r.Context())
	if err := s.config.Invalidate(r.Context(), t.ID); err != nil {
		s.writeError(w, r, "failed to invalidate cache", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "tenant": t.ID})
}

// calculate loads the tenant's configuration and prices form. Configuration failures degrade to
// the engine's fallback pricing.
func (s *server) calculate(ctx context.Context, t tenant.Tenant, form pricing.FormData) (pricing.QuoteData, error) {
	rules, err := s.config.Rules(ctx, t)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInput {
			return pricing.QuoteData{}, err
		}
		s.log.Warn("pricing rules unavailable; using fallback prices", zap.String("tenant", t.ID), zap.Error(err))
		rules = nil
	}
	services, err := s.config.Services(ctx, t)
	if err != nil {
		s.log.Warn("service config unavailable", zap.String("tenant", t.ID), zap.Error(err))
		services = nil
	}
	return s.engine.CalculateQuote(form, rules, services), nil
}

func (s *server) decodeForm(w http.ResponseWriter, r *http.Request) (pricing.FormData, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return nil, false
		}
		s.writeError(w, r, "invalid request body", apperr.Input("decode request: %v", err))
		return nil, false
	}
	if req.FormData == nil {
		s.writeError(w, r, "invalid request body", apperr.Input("formData is required"))
		return nil, false
	}
	return req.FormData, true
}
