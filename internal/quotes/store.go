// Package quotes persists submitted quotes. Each row keeps the answers and the calculated quote
// as JSON snapshots so a stored quote is shown exactly as it was priced.
package quotes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/pricing"
)

const timeLayout = "2006-01-02 15:04:05"

// Record is a stored quote.
type Record struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	CreatedAt   time.Time         `json:"createdAt"`
	Contact     pricing.Contact   `json:"contact"`
	Form        pricing.FormData  `json:"formData"`
	Quote       pricing.QuoteData `json:"quote"`
	CRMRecordID string            `json:"crmRecordId,omitempty"`
	DeliveredAt *time.Time        `json:"deliveredAt,omitempty"`
}

// Summary is one row of the quote list.
type Summary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	ContactName  string    `json:"contactName"`
	ContactEmail string    `json:"contactEmail"`
	Company      string    `json:"company,omitempty"`
	TotalMonthly float64   `json:"totalMonthlyFees"`
	TotalOneTime float64   `json:"totalOneTimeFees"`
	TotalAnnual  float64   `json:"totalAnnual"`
}

// Store reads and writes quotes in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save stores rec and returns its id. A missing id or timestamp is filled in.
func (s *Store) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.TenantID == "" {
		return Record{}, apperr.Input("quote without tenant")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Second)

	formJSON, err := json.Marshal(rec.Form)
	if err != nil {
		return Record{}, fmt.Errorf("encode form data: %w", err)
	}
	quoteJSON, err := json.Marshal(rec.Quote)
	if err != nil {
		return Record{}, fmt.Errorf("encode quote: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quotes (
			id,
			tenant_id,
			created_at,
			contact_name,
			contact_email,
			company,
			form_json,
			quote_json
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.TenantID,
		rec.CreatedAt.Format(timeLayout),
		rec.Contact.FullName(),
		rec.Contact.Email,
		rec.Contact.Company,
		string(formJSON),
		string(quoteJSON),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert quote: %w", err)
	}
	return rec, nil
}

// List returns the tenant's quotes newest first. A non-empty query filters on contact name,
// email and company.
func (s *Store) List(ctx context.Context, tenantID, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	search := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id,
			created_at,
			contact_name,
			contact_email,
			company,
			quote_json
		FROM quotes
		WHERE tenant_id = ?
			AND (? = '' OR contact_name LIKE ? OR contact_email LIKE ? OR company LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, tenantID, query, search, search, search)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]Summary, 0)
	for rows.Next() {
		var (
			item      Summary
			createdAt string
			quoteJSON string
		)
		if err := rows.Scan(&item.ID, &createdAt, &item.ContactName, &item.ContactEmail, &item.Company, &quoteJSON); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		item.TotalMonthly, item.TotalOneTime, item.TotalAnnual = extractTotals(quoteJSON)
		quotes = append(quotes, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return quotes, nil
}

// Get returns the stored snapshot of a quote. Quotes of other tenants are not found.
func (s *Store) Get(ctx context.Context, tenantID, id string) (Record, error) {
	var (
		rec         Record
		createdAt   string
		formJSON    string
		quoteJSON   string
		deliveredAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			id,
			tenant_id,
			created_at,
			form_json,
			quote_json,
			crm_record_id,
			delivered_at
		FROM quotes
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id).Scan(&rec.ID, &rec.TenantID, &createdAt, &formJSON, &quoteJSON, &rec.CRMRecordID, &deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("quote", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load quote %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(formJSON), &rec.Form); err != nil {
		return Record{}, fmt.Errorf("decode quote %s form data: %w", id, err)
	}
	if err := json.Unmarshal([]byte(quoteJSON), &rec.Quote); err != nil {
		return Record{}, fmt.Errorf("decode quote %s: %w", id, err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.Contact = pricing.NewAnswers(rec.Form).Contact()
	if deliveredAt.Valid {
		t := parseTime(deliveredAt.String)
		rec.DeliveredAt = &t
	}
	return rec, nil
}

// MarkDelivered records a successful delivery and the CRM record it created, if any.
func (s *Store) MarkDelivered(ctx context.Context, tenantID, id, crmRecordID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quotes
		SET delivered_at = ?, crm_record_id = CASE WHEN ? = '' THEN crm_record_id ELSE ? END
		WHERE tenant_id = ? AND id = ?
	`, s.now().UTC().Format(timeLayout), crmRecordID, crmRecordID, tenantID, id)
	if err != nil {
		return fmt.Errorf("mark quote %s delivered: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark quote %s delivered: %w", id, err)
	}
	if affected == 0 {
		return apperr.NotFound("quote", id)
	}
	return nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// extractTotals reads the totals from a stored quote, tolerating snapshots that cannot be decoded.
func extractTotals(quoteJSON string) (monthly, oneTime, annual float64) {
	var values struct {
		Monthly float64 `json:"totalMonthlyFees"`
		OneTime float64 `json:"totalOneTimeFees"`
		Annual  float64 `json:"totalAnnual"`
	}
	if err := json.Unmarshal([]byte(quoteJSON), &values); err != nil {
		return 0, 0, 0
	}
	return values.Monthly, values.OneTime, values.Annual
}
