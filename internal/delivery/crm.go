package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/quotewizard/internal/airtable"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

// TableQuotes is the CRM table submissions are written to.
const TableQuotes = "Quotes"

// AirtableCRM records submissions in the tenant's Airtable base.
type AirtableCRM struct {
	client *airtable.Client
}

// NewAirtableCRM returns a CRM target using client with each tenant's own API key.
func NewAirtableCRM(client *airtable.Client) *AirtableCRM {
	return &AirtableCRM{client: client}
}

func (c *AirtableCRM) Name() string { return "airtable-crm" }

func (c *AirtableCRM) Enabled(t tenant.Tenant) bool { return t.AirtableBaseID != "" }

// Deliver creates a Quotes record, or updates the existing one when the submission has one.
func (c *AirtableCRM) Deliver(ctx context.Context, t tenant.Tenant, sub Submission) (Receipt, error) {
	fields, err := crmFields(sub)
	if err != nil {
		return Receipt{}, err
	}

	client := c.client.WithAPIKey(t.AirtableAPIKey)
	var rec airtable.Record
	if sub.CRMRecordID != "" {
		rec, err = client.UpdateRecord(ctx, t.AirtableBaseID, TableQuotes, sub.CRMRecordID, fields)
	} else {
		rec, err = client.CreateRecord(ctx, t.AirtableBaseID, TableQuotes, fields)
	}
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Target: c.Name(), RecordID: rec.ID}, nil
}

func crmFields(sub Submission) (map[string]any, error) {
	quoteJSON, err := json.Marshal(sub.Quote)
	if err != nil {
		return nil, fmt.Errorf("encode quote for crm: %w", err)
	}

	names := make([]string, 0, len(sub.Quote.Services))
	for _, s := range sub.Quote.Services {
		names = append(names, s.Name)
	}

	return map[string]any{
		"Quote ID":       sub.ID,
		"Name":           sub.Contact.FullName(),
		"Email":          sub.Contact.Email,
		"Phone":          sub.Contact.Phone,
		"Company":        sub.Contact.Company,
		"Services":       strings.Join(names, ", "),
		"Monthly Total":  sub.Quote.TotalMonthlyFees,
		"One-Time Total": sub.Quote.TotalOneTimeFees,
		"Annual Total":   sub.Quote.TotalAnnual,
		"Complexity":     string(sub.Quote.Complexity),
		"Submitted At":   sub.SubmittedAt.UTC().Format(time.RFC3339),
		"Quote JSON":     string(quoteJSON),
		"Advisory":       pricing.NewAnswers(sub.FormData).Selected(pricing.ServiceAdvisory),
	}, nil
}
