package tenantconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/pricing"
)

// Column names used by the tenant's Airtable tables.
const (
	colServiceID         = "Service ID"
	colPricingRuleID     = "Pricing Rule ID"
	colServiceName       = "Service Name"
	colDescription       = "Description"
	colPricingType       = "Pricing Type"
	colBillingFrequency  = "Billing Frequency"
	colActive            = "Active"
	colTriggerField      = "Trigger Form Field"
	colRequiredValue     = "Required Form Value"
	colComparisonLogic   = "Comparison Logic"
	colCalculationMethod = "Calculation Method"
	colPerUnitPricing    = "Per Unit Pricing"
	colBasePrice         = "Base Price"
	colUnitPrice         = "Unit Price"
	colQuantityField     = "Quantity Source Field"
	colUnitName          = "Unit Name"
	colEntityType        = "Entity Type"
	colFormula           = "Formula Expression"
	colMinimumValue      = "Minimum Value"
	colMaximumValue      = "Maximum Value"
	colAdvisoryEligible  = "Advisory Discount Eligible"
	colAdvisoryPercent   = "Advisory Discount Percentage"

	colTitle              = "Title"
	colDisplayOrder       = "Display Order"
	colFormSection        = "Form Section"
	colMinimumMonthlyFee  = "Minimum Monthly Fee"
	colBaseFeeRuleIDs     = "Base Fee Rule IDs"
	colMinimumFeeDiscount = "Minimum Fee Advisory Discount"
	colAggregates         = "Aggregates"

	colFieldID   = "Field ID"
	colSection   = "Section"
	colLabel     = "Label"
	colFieldType = "Field Type"
	colOptions   = "Options"
	colRequired  = "Required"
	colHelpText  = "Help Text"
)

// FormField describes one question of the tenant's wizard.
type FormField struct {
	ID           string   `json:"id" yaml:"id"`
	Section      string   `json:"section" yaml:"section"`
	Label        string   `json:"label" yaml:"label"`
	Type         string   `json:"type" yaml:"type"`
	Options      []string `json:"options,omitempty" yaml:"options,omitempty"`
	Required     bool     `json:"required,omitempty" yaml:"required,omitempty"`
	DisplayOrder int      `json:"displayOrder" yaml:"displayOrder"`
	ServiceID    string   `json:"serviceId,omitempty" yaml:"serviceId,omitempty"`
	HelpText     string   `json:"helpText,omitempty" yaml:"helpText,omitempty"`
}

// Path is the dotted answer path of the field.
func (f FormField) Path() string {
	if f.Section == "" {
		return f.ID
	}
	return f.Section + "." + f.ID
}

// ParseRule converts one Pricing table row into a validated rule.
func ParseRule(fields map[string]any) (pricing.Rule, error) {
	f := row(fields)
	r := pricing.Rule{
		ServiceID:           f.str(colServiceID),
		PricingRuleID:       f.str(colPricingRuleID),
		ServiceName:         f.str(colServiceName),
		Description:         f.str(colDescription),
		PricingType:         pricing.PricingType(f.str(colPricingType)),
		Billing:             pricing.BillingFrequency(f.str(colBillingFrequency)),
		Active:              f.boolean(colActive),
		TriggerFormField:    f.str(colTriggerField),
		RequiredFormValue:   f.str(colRequiredValue),
		ComparisonLogic:     pricing.Operator(f.str(colComparisonLogic)),
		CalculationMethod:   pricing.CalculationMethod(f.str(colCalculationMethod)),
		PerUnitPricing:      f.boolean(colPerUnitPricing),
		BasePrice:           f.number(colBasePrice),
		UnitPrice:           f.numberPtr(colUnitPrice),
		UnitName:            f.str(colUnitName),
		QuantitySourceField: f.str(colQuantityField),
		EntityType:          f.str(colEntityType),
		FormulaExpression:   f.str(colFormula),
		MinimumValue:        f.numberPtr(colMinimumValue),
		MaximumValue:        f.numberPtr(colMaximumValue),

		AdvisoryDiscountEligible:   f.boolean(colAdvisoryEligible),
		AdvisoryDiscountPercentage: f.number(colAdvisoryPercent),
	}
	return ValidateRule(r)
}

// ValidateRule normalizes a rule's enumerated fields and rejects rules the engine could not
// price. An empty calculation method is inferred from the per-unit flag.
func ValidateRule(r pricing.Rule) (pricing.Rule, error) {
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.PricingRuleID = strings.TrimSpace(r.PricingRuleID)
	if r.PricingRuleID == "" {
		return r, apperr.Input("pricing rule without id (service %q)", r.ServiceID)
	}
	if r.ServiceID == "" {
		return r, apperr.Input("pricing rule %s: missing service id", r.PricingRuleID)
	}

	pt, err := pricing.ParsePricingType(string(r.PricingType))
	if err != nil {
		return r, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err)
	}
	r.PricingType = pt

	bf, err := pricing.ParseBillingFrequency(string(r.Billing))
	if err != nil {
		return r, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err)
	}
	r.Billing = bf

	if r.TriggerFormField != "" || r.ComparisonLogic != "" {
		op, err := pricing.ParseOperator(string(r.ComparisonLogic))
		if err != nil {
			return r, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err)
		}
		r.ComparisonLogic = op
	}

	method, err := pricing.ParseCalculationMethod(string(r.CalculationMethod))
	if err != nil {
		return r, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err)
	}
	r.CalculationMethod = method
	if r.CalculationMethod == "" {
		r.CalculationMethod = r.Method()
	}

	if r.CalculationMethod == pricing.MethodFormula {
		if err := pricing.ParseFormula(r.FormulaExpression); err != nil {
			return r, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err)
		}
	}
	if r.MinimumValue != nil && r.MaximumValue != nil && *r.MinimumValue > *r.MaximumValue {
		return r, apperr.Input("pricing rule %s: minimum %.2f above maximum %.2f",
			r.PricingRuleID, *r.MinimumValue, *r.MaximumValue)
	}

	r.AdvisoryDiscountPercentage = fraction(r.AdvisoryDiscountPercentage)
	return r, nil
}

// CheckRuleReferences drops formula rules that name a known rule id followed by a dash, which
// reads as one unknown name rather than a subtraction. It returns the kept rules and one problem
// per dropped rule.
func CheckRuleReferences(rules []pricing.Rule) ([]pricing.Rule, []error) {
	ids := make(map[string]bool, len(rules))
	for _, r := range rules {
		ids[r.PricingRuleID] = true
	}
	var problems []error
	kept := make([]pricing.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Method() == pricing.MethodFormula {
			if err := pricing.CheckFormulaNames(r.FormulaExpression, ids); err != nil {
				problems = append(problems, apperr.Input("pricing rule %s: %v", r.PricingRuleID, err))
				continue
			}
		}
		kept = append(kept, r)
	}
	return kept, problems
}

// ParseService converts one Services table row into a validated service config.
func ParseService(fields map[string]any) (pricing.ServiceConfig, error) {
	f := row(fields)
	s := pricing.ServiceConfig{
		ServiceID:                  f.str(colServiceID),
		Title:                      f.str(colTitle),
		Description:                f.str(colDescription),
		DisplayOrder:               int(f.number(colDisplayOrder)),
		FormSection:                f.str(colFormSection),
		MinimumMonthlyFee:          f.number(colMinimumMonthlyFee),
		BaseFeeRuleIDs:             f.list(colBaseFeeRuleIDs),
		MinimumFeeAdvisoryDiscount: f.number(colMinimumFeeDiscount),
	}
	if s.Title == "" {
		s.Title = f.str(colServiceName)
	}
	if raw := f.str(colAggregates); raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Aggregates); err != nil {
			return s, apperr.Input("service %s: aggregates: %v", s.ServiceID, err)
		}
	}
	return ValidateService(s)
}

// ValidateService normalizes a service config's aggregates and discount.
func ValidateService(s pricing.ServiceConfig) (pricing.ServiceConfig, error) {
	s.ServiceID = strings.TrimSpace(s.ServiceID)
	if s.ServiceID == "" {
		return s, apperr.Input("service without id")
	}
	if s.MinimumMonthlyFee < 0 {
		return s, apperr.Input("service %s: negative minimum monthly fee", s.ServiceID)
	}
	s.MinimumFeeAdvisoryDiscount = fraction(s.MinimumFeeAdvisoryDiscount)

	for name, agg := range s.Aggregates {
		var err error
		for i, t := range agg.IncludePricingTypes {
			if agg.IncludePricingTypes[i], err = pricing.ParsePricingType(string(t)); err != nil {
				return s, apperr.Input("service %s aggregate %s: %v", s.ServiceID, name, err)
			}
		}
		for i, t := range agg.ExcludePricingTypes {
			if agg.ExcludePricingTypes[i], err = pricing.ParsePricingType(string(t)); err != nil {
				return s, apperr.Input("service %s aggregate %s: %v", s.ServiceID, name, err)
			}
		}
		for i, fr := range agg.IncludeFrequencies {
			if agg.IncludeFrequencies[i], err = pricing.ParseBillingFrequency(string(fr)); err != nil {
				return s, apperr.Input("service %s aggregate %s: %v", s.ServiceID, name, err)
			}
		}
		for i, fr := range agg.ExcludeFrequencies {
			if agg.ExcludeFrequencies[i], err = pricing.ParseBillingFrequency(string(fr)); err != nil {
				return s, apperr.Input("service %s aggregate %s: %v", s.ServiceID, name, err)
			}
		}
		s.Aggregates[name] = agg
	}
	return s, nil
}

// ParseFormField converts one Form Fields table row.
func ParseFormField(fields map[string]any) (FormField, error) {
	f := row(fields)
	ff := FormField{
		ID:           f.str(colFieldID),
		Section:      f.str(colSection),
		Label:        f.str(colLabel),
		Type:         strings.ToLower(f.str(colFieldType)),
		Options:      f.list(colOptions),
		Required:     f.boolean(colRequired),
		DisplayOrder: int(f.number(colDisplayOrder)),
		ServiceID:    f.str(colServiceID),
		HelpText:     f.str(colHelpText),
	}
	if ff.ID == "" {
		return ff, apperr.Input("form field without id (label %q)", ff.Label)
	}
	if ff.Type == "" {
		ff.Type = "text"
	}
	return ff, nil
}

// SortFormFields orders fields by section then display order.
func SortFormFields(fields []FormField) {
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Section != fields[j].Section {
			return fields[i].Section < fields[j].Section
		}
		return fields[i].DisplayOrder < fields[j].DisplayOrder
	})
}

// fraction accepts 0.25 or 25 for twenty-five percent and clamps to [0, 1].
func fraction(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Min(v, 1)
}

// row reads loosely typed Airtable cell values.
type row map[string]any

func (r row) str(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) > 0 {
			return strings.TrimSpace(fmt.Sprint(v[0]))
		}
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (r row) boolean(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1", "checked":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

func (r row) numberPtr(col string) *float64 {
	switch v := r[col].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		s := strings.NewReplacer("$", "", ",", "", "%", "").Replace(strings.TrimSpace(v))
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

func (r row) number(col string) float64 {
	if p := r.numberPtr(col); p != nil {
		return *p
	}
	return 0
}

// list reads a multi-select, linked-record or comma separated cell.
func (r row) list(col string) []string {
	var out []string
	switch v := r[col].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
