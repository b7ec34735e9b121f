// Package airtable is a small client for the Airtable REST API: listing, creating and updating
// records in a base's tables.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Simplici0/quotewizard/internal/apperr"
)

// DefaultBaseURL is the public Airtable API root.
const DefaultBaseURL = "https://api.airtable.com/v0"

// maxPages bounds pagination so a misbehaving server cannot loop forever.
const maxPages = 100

// Record is one Airtable row.
type Record struct {
	ID          string         `json:"id,omitempty"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// ListOptions narrows a ListRecords call.
type ListOptions struct {
	View            string
	FilterByFormula string
	PageSize        int
}

// Client talks to one Airtable API root with one API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a client for baseURL. A nil httpClient gets a 15 second timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}
}

// WithAPIKey returns a copy of c that authenticates with key. An empty key keeps c's key.
func (c *Client) WithAPIKey(key string) *Client {
	if key == "" {
		return c
	}
	cp := *c
	cp.apiKey = key
	return &cp
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// ListRecords returns every record of table, following pagination offsets.
func (c *Client) ListRecords(ctx context.Context, baseID, table string, opts ListOptions) ([]Record, error) {
	var all []Record
	offset := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		if opts.View != "" {
			q.Set("view", opts.View)
		}
		if opts.FilterByFormula != "" {
			q.Set("filterByFormula", opts.FilterByFormula)
		}
		if opts.PageSize > 0 {
			q.Set("pageSize", strconv.Itoa(opts.PageSize))
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, c.tableURL(baseID, table, "")+encodeQuery(q), nil, &resp); err != nil {
			return nil, fmt.Errorf("list %s records: %w", table, err)
		}
		all = append(all, resp.Records...)
		if resp.Offset == "" {
			return all, nil
		}
		offset = resp.Offset
	}
	return nil, apperr.Upstream(fmt.Sprintf("list %s records", table), fmt.Errorf("more than %d pages", maxPages))
}

// CreateRecord inserts a record and returns it as stored.
func (c *Client) CreateRecord(ctx context.Context, baseID, table string, fields map[string]any) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, c.tableURL(baseID, table, ""), Record{Fields: fields}, &out); err != nil {
		return Record{}, fmt.Errorf("create %s record: %w", table, err)
	}
	return out, nil
}

// UpdateRecord changes the given fields of record id, leaving the others untouched.
func (c *Client) UpdateRecord(ctx context.Context, baseID, table, id string, fields map[string]any) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPatch, c.tableURL(baseID, table, id), Record{Fields: fields}, &out); err != nil {
		return Record{}, fmt.Errorf("update %s record %s: %w", table, id, err)
	}
	return out, nil
}

func (c *Client) tableURL(baseID, table, id string) string {
	u := c.baseURL + "/" + url.PathEscape(baseID) + "/" + url.PathEscape(table)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type apiError struct {
	Error json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream("airtable request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return apperr.Upstream("read airtable response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound("airtable resource", req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Upstream(fmt.Sprintf("airtable returned %d", resp.StatusCode), fmt.Errorf("%s", errorMessage(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperr.Upstream("decode airtable response", err)
	}
	return nil
}

// errorMessage extracts Airtable's error, which is either a string or {type, message}.
func errorMessage(payload []byte) string {
	var e apiError
	if err := json.Unmarshal(payload, &e); err != nil || len(e.Error) == 0 {
		return strings.TrimSpace(string(payload))
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return s
	}
	var obj struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		if obj.Message != "" {
			return obj.Type + ": " + obj.Message
		}
		return obj.Type
	}
	return string(e.Error)
}
