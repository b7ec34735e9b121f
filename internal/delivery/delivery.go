// Package delivery sends submitted quotes to a tenant's webhook and CRM.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

// Submission is a quote as handed to external systems.
type Submission struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	SubmittedAt time.Time         `json:"submittedAt"`
	Contact     pricing.Contact   `json:"contact"`
	FormData    pricing.FormData  `json:"formData"`
	Quote       pricing.QuoteData `json:"quote"`
	// CRMRecordID is set when the submission already has a CRM record to update.
	CRMRecordID string `json:"crmRecordId,omitempty"`
}

// Receipt reports one successful delivery.
type Receipt struct {
	Target   string `json:"target"`
	RecordID string `json:"recordId,omitempty"`
}

// Target is one destination for submissions.
type Target interface {
	Name() string
	// Enabled reports whether the tenant has this destination configured.
	Enabled(t tenant.Tenant) bool
	Deliver(ctx context.Context, t tenant.Tenant, sub Submission) (Receipt, error)
}

// Fanout delivers to every enabled target.
type Fanout struct {
	targets []Target
	log     *zap.Logger
}

// NewFanout returns a Fanout over targets.
func NewFanout(log *zap.Logger, targets ...Target) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{targets: targets, log: log.Named("delivery")}
}

// Deliver sends sub to every enabled target. A failing target does not stop the others; the
// returned error joins every failure.
func (f *Fanout) Deliver(ctx context.Context, t tenant.Tenant, sub Submission) ([]Receipt, error) {
	var (
		receipts []Receipt
		errs     []error
	)
	for _, target := range f.targets {
		if !target.Enabled(t) {
			continue
		}
		r, err := target.Deliver(ctx, t, sub)
		if err != nil {
			f.log.Warn("quote delivery failed",
				zap.String("tenant", t.ID),
				zap.String("quote", sub.ID),
				zap.String("target", target.Name()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
			continue
		}
		f.log.Info("quote delivered",
			zap.String("tenant", t.ID),
			zap.String("quote", sub.ID),
			zap.String("target", target.Name()),
		)
		receipts = append(receipts, r)
	}
	return receipts, errors.Join(errs...)
}

// RecordID returns the first CRM record id among receipts.
func RecordID(receipts []Receipt) string {
	for _, r := range receipts {
		if r.RecordID != "" {
			return r.RecordID
		}
	}
	return ""
}
