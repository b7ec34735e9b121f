// Package tenantconfig loads a tenant's pricing rules, service metadata and form fields from
// Airtable or YAML files, validating them at the boundary and caching the results.
package tenantconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Simplici0/quotewizard/internal/airtable"
	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

// Airtable table names.
const (
	TablePricing    = "Pricing"
	TableServices   = "Services"
	TableFormFields = "Form Fields"
)

// Source supplies a tenant's configuration.
type Source interface {
	Rules(ctx context.Context, t tenant.Tenant) ([]pricing.Rule, error)
	Services(ctx context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error)
	FormFields(ctx context.Context, t tenant.Tenant) ([]FormField, error)
}

// AirtableSource reads the tenant's own Airtable base. Invalid rows are logged and skipped.
type AirtableSource struct {
	client *airtable.Client
	log    *zap.Logger
}

// NewAirtableSource returns a source using client, switching to each tenant's API key when set.
func NewAirtableSource(client *airtable.Client, log *zap.Logger) *AirtableSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &AirtableSource{client: client, log: log.Named("airtable-config")}
}

func (s *AirtableSource) records(ctx context.Context, t tenant.Tenant, table string) ([]airtable.Record, error) {
	if t.AirtableBaseID == "" {
		return nil, apperr.Config(fmt.Sprintf("tenant %s has no airtable base", t.ID), nil)
	}
	return s.client.WithAPIKey(t.AirtableAPIKey).ListRecords(ctx, t.AirtableBaseID, table, airtable.ListOptions{})
}

func (s *AirtableSource) Rules(ctx context.Context, t tenant.Tenant) ([]pricing.Rule, error) {
	records, err := s.records(ctx, t, TablePricing)
	if err != nil {
		return nil, err
	}
	rules := make([]pricing.Rule, 0, len(records))
	for _, rec := range records {
		r, err := ParseRule(rec.Fields)
		if err != nil {
			s.log.Warn("skipping pricing rule", zap.String("tenant", t.ID), zap.String("record", rec.ID), zap.Error(err))
			continue
		}
		rules = append(rules, r)
	}
	rules, problems := CheckRuleReferences(rules)
	for _, p := range problems {
		s.log.Warn("skipping pricing rule", zap.String("tenant", t.ID), zap.Error(p))
	}
	return rules, nil
}

func (s *AirtableSource) Services(ctx context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error) {
	records, err := s.records(ctx, t, TableServices)
	if err != nil {
		return nil, err
	}
	services := make([]pricing.ServiceConfig, 0, len(records))
	for _, rec := range records {
		svc, err := ParseService(rec.Fields)
		if err != nil {
			s.log.Warn("skipping service", zap.String("tenant", t.ID), zap.String("record", rec.ID), zap.Error(err))
			continue
		}
		services = append(services, svc)
	}
	return services, nil
}

func (s *AirtableSource) FormFields(ctx context.Context, t tenant.Tenant) ([]FormField, error) {
	records, err := s.records(ctx, t, TableFormFields)
	if err != nil {
		return nil, err
	}
	fields := make([]FormField, 0, len(records))
	for _, rec := range records {
		ff, err := ParseFormField(rec.Fields)
		if err != nil {
			s.log.Warn("skipping form field", zap.String("tenant", t.ID), zap.String("record", rec.ID), zap.Error(err))
			continue
		}
		fields = append(fields, ff)
	}
	SortFormFields(fields)
	return fields, nil
}

// Document is the YAML form of a tenant's configuration.
type Document struct {
	Services   []pricing.ServiceConfig `yaml:"services"`
	Pricing    []pricing.Rule          `yaml:"pricing"`
	FormFields []FormField             `yaml:"formFields,omitempty"`
}

// LoadDocument reads and validates a YAML configuration file. Invalid rules and services are
// dropped; the returned problems describe each one.
func LoadDocument(path string) (Document, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil, apperr.NotFound("tenant config", path)
		}
		return Document{}, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, nil, apperr.Config(fmt.Sprintf("parse %s", path), err)
	}
	problems := doc.Validate()
	return doc, problems, nil
}

// Validate normalizes doc in place, dropping invalid rules and services, and returns what
// was dropped. Rule ids must be unique.
func (d *Document) Validate() []error {
	var problems []error

	services := d.Services[:0]
	for _, svc := range d.Services {
		v, err := ValidateService(svc)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		services = append(services, v)
	}
	d.Services = services

	seen := make(map[string]bool, len(d.Pricing))
	rules := d.Pricing[:0]
	for _, r := range d.Pricing {
		v, err := ValidateRule(r)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if seen[v.PricingRuleID] {
			problems = append(problems, apperr.Input("pricing rule %s: duplicate id", v.PricingRuleID))
			continue
		}
		seen[v.PricingRuleID] = true
		rules = append(rules, v)
	}
	rules, refProblems := CheckRuleReferences(rules)
	d.Pricing = rules
	problems = append(problems, refProblems...)

	SortFormFields(d.FormFields)
	return problems
}

// WriteDocument writes doc as YAML.
func WriteDocument(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode tenant config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var tenantFileName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileSource reads <dir>/<tenant id>.yaml.
type FileSource struct {
	dir string
	log *zap.Logger
}

// NewFileSource returns a source reading YAML files from dir.
func NewFileSource(dir string, log *zap.Logger) *FileSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSource{dir: dir, log: log.Named("file-config")}
}

func (s *FileSource) load(t tenant.Tenant) (Document, error) {
	if s.dir == "" {
		return Document{}, apperr.Config("no tenant config directory", nil)
	}
	if !tenantFileName.MatchString(t.ID) {
		return Document{}, apperr.Input("invalid tenant id %q", t.ID)
	}
	doc, problems, err := LoadDocument(filepath.Join(s.dir, t.ID+".yaml"))
	if err != nil {
		return Document{}, err
	}
	for _, p := range problems {
		s.log.Warn("tenant config entry dropped", zap.String("tenant", t.ID), zap.Error(p))
	}
	return doc, nil
}

func (s *FileSource) Rules(_ context.Context, t tenant.Tenant) ([]pricing.Rule, error) {
	doc, err := s.load(t)
	return doc.Pricing, err
}

func (s *FileSource) Services(_ context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error) {
	doc, err := s.load(t)
	return doc.Services, err
}

func (s *FileSource) FormFields(_ context.Context, t tenant.Tenant) ([]FormField, error) {
	doc, err := s.load(t)
	return doc.FormFields, err
}

// FirstOf tries each source in order, moving on when a source is not configured for the
// tenant (config or not-found errors). Other errors stop the search.
func FirstOf(sources ...Source) Source {
	return chain(sources)
}

type chain []Source

func (c chain) Rules(ctx context.Context, t tenant.Tenant) ([]pricing.Rule, error) {
	return try(c, func(s Source) ([]pricing.Rule, error) { return s.Rules(ctx, t) })
}

func (c chain) Services(ctx context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error) {
	return try(c, func(s Source) ([]pricing.ServiceConfig, error) { return s.Services(ctx, t) })
}

func (c chain) FormFields(ctx context.Context, t tenant.Tenant) ([]FormField, error) {
	return try(c, func(s Source) ([]FormField, error) { return s.FormFields(ctx, t) })
}

func try[T any](sources []Source, fn func(Source) (T, error)) (T, error) {
	var zero T
	err := error(apperr.Config("no configuration source", nil))
	for _, s := range sources {
		var v T
		v, err = fn(s)
		if err == nil {
			return v, nil
		}
		if k := apperr.KindOf(err); k != apperr.KindConfig && k != apperr.KindNotFound {
			return zero, err
		}
	}
	return zero, err
}
