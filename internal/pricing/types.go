package pricing

import (
	"fmt"
	"strings"
)

// Well-known service identifiers. Tenants may configure other services; these are the ones
// the aggregator gives special treatment to.
const (
	ServiceIndividualTax      = "individual-tax"
	ServiceBusinessTax        = "business-tax"
	ServiceBookkeeping        = "bookkeeping"
	ServiceAdvisory           = "advisory"
	ServiceAdditionalServices = "additional-services"
)

// PricingType classifies a rule.
type PricingType string

const (
	PricingTypeBase     PricingType = "Base Service"
	PricingTypeAddOn    PricingType = "Add-on"
	PricingTypeDiscount PricingType = "Discount"
)

// BillingFrequency says which bucket a rule's price lands in.
type BillingFrequency string

const (
	BillingMonthly BillingFrequency = "Monthly"
	BillingOneTime BillingFrequency = "One-Time Fee"
	BillingAnnual  BillingFrequency = "Annual"
)

// CalculationMethod selects how a rule's price is computed.
type CalculationMethod string

const (
	MethodSimple  CalculationMethod = "simple"
	MethodPerUnit CalculationMethod = "per-unit"
	MethodFormula CalculationMethod = "formula"
)

// Operator is a trigger comparison.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "notContains"
	OpLessThan           Operator = "lessThan"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpGreaterThan        Operator = "greaterThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpIsEmpty            Operator = "isEmpty"
	OpIsNotEmpty         Operator = "isNotEmpty"
)

// Complexity is the coarse classification of a client's situation.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very-high"
)

// normalizeToken lowercases s and drops everything but letters and digits, so
// "One-Time Fee", "one_time_fee" and "onetimefee" compare equal.
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParsePricingType maps a tenant-supplied label onto a PricingType.
func ParsePricingType(s string) (PricingType, error) {
	switch normalizeToken(s) {
	case "baseservice", "base":
		return PricingTypeBase, nil
	case "addon":
		return PricingTypeAddOn, nil
	case "discount":
		return PricingTypeDiscount, nil
	}
	return "", fmt.Errorf("unknown pricing type %q", s)
}

// ParseBillingFrequency maps a tenant-supplied label onto a BillingFrequency.
func ParseBillingFrequency(s string) (BillingFrequency, error) {
	switch normalizeToken(s) {
	case "monthly":
		return BillingMonthly, nil
	case "onetimefee", "onetime":
		return BillingOneTime, nil
	case "annual", "annually", "yearly":
		return BillingAnnual, nil
	}
	return "", fmt.Errorf("unknown billing frequency %q", s)
}

// ParseCalculationMethod maps a tenant-supplied label onto a CalculationMethod.
// An empty label is not an error: the caller infers the method from the per-unit flag.
func ParseCalculationMethod(s string) (CalculationMethod, error) {
	switch normalizeToken(s) {
	case "":
		return "", nil
	case "simple", "flat":
		return MethodSimple, nil
	case "perunit":
		return MethodPerUnit, nil
	case "formula":
		return MethodFormula, nil
	}
	return "", fmt.Errorf("unknown calculation method %q", s)
}

// ParseOperator maps a comparison label onto an Operator. The legacy "includes" spelling is
// accepted as an alias of contains.
func ParseOperator(s string) (Operator, error) {
	switch normalizeToken(s) {
	case "", "equals", "eq", "is":
		return OpEquals, nil
	case "notequals", "ne", "isnot":
		return OpNotEquals, nil
	case "contains", "includes":
		return OpContains, nil
	case "notcontains", "notincludes", "doesnotcontain":
		return OpNotContains, nil
	case "lessthan", "lt":
		return OpLessThan, nil
	case "lessthanorequal", "lte":
		return OpLessThanOrEqual, nil
	case "greaterthan", "gt":
		return OpGreaterThan, nil
	case "greaterthanorequal", "gte":
		return OpGreaterThanOrEqual, nil
	case "isempty", "empty":
		return OpIsEmpty, nil
	case "isnotempty", "notempty":
		return OpIsNotEmpty, nil
	}
	return Operator(s), fmt.Errorf("unknown comparison operator %q", s)
}

// Rule is one tenant-configured pricing rule (a row of the Pricing table).
type Rule struct {
	ServiceID     string           `json:"serviceId" yaml:"serviceId"`
	PricingRuleID string           `json:"pricingRuleId" yaml:"pricingRuleId"`
	ServiceName   string           `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	PricingType   PricingType      `json:"pricingType" yaml:"pricingType"`
	Billing       BillingFrequency `json:"billingFrequency" yaml:"billingFrequency"`
	Active        bool             `json:"active" yaml:"active"`

	TriggerFormField  string   `json:"triggerFormField,omitempty" yaml:"triggerFormField,omitempty"`
	RequiredFormValue string   `json:"requiredFormValue,omitempty" yaml:"requiredFormValue,omitempty"`
	ComparisonLogic   Operator `json:"comparisonLogic,omitempty" yaml:"comparisonLogic,omitempty"`

	CalculationMethod   CalculationMethod `json:"calculationMethod,omitempty" yaml:"calculationMethod,omitempty"`
	PerUnitPricing      bool              `json:"perUnitPricing,omitempty" yaml:"perUnitPricing,omitempty"`
	BasePrice           float64           `json:"basePrice" yaml:"basePrice"`
	UnitPrice           *float64          `json:"unitPrice,omitempty" yaml:"unitPrice,omitempty"`
	UnitName            string            `json:"unitName,omitempty" yaml:"unitName,omitempty"`
	QuantitySourceField string            `json:"quantitySourceField,omitempty" yaml:"quantitySourceField,omitempty"`
	EntityType          string            `json:"entityType,omitempty" yaml:"entityType,omitempty"`

	FormulaExpression string   `json:"formulaExpression,omitempty" yaml:"formulaExpression,omitempty"`
	MinimumValue      *float64 `json:"minimumValue,omitempty" yaml:"minimumValue,omitempty"`
	MaximumValue      *float64 `json:"maximumValue,omitempty" yaml:"maximumValue,omitempty"`

	AdvisoryDiscountEligible   bool    `json:"advisoryDiscountEligible,omitempty" yaml:"advisoryDiscountEligible,omitempty"`
	AdvisoryDiscountPercentage float64 `json:"advisoryDiscountPercentage,omitempty" yaml:"advisoryDiscountPercentage,omitempty"`
}

// Method returns the calculation method, inferring it from PerUnitPricing when unset.
func (r Rule) Method() CalculationMethod {
	if r.CalculationMethod != "" {
		return r.CalculationMethod
	}
	if r.PerUnitPricing {
		return MethodPerUnit
	}
	return MethodSimple
}

// HasTrigger reports whether the rule is gated by a trigger condition.
func (r Rule) HasTrigger() bool {
	return strings.TrimSpace(r.TriggerFormField) != ""
}

// IsHourly reports whether the rule is billed by the hour (per-unit with a unit name), which
// makes it a rate disclosure instead of a priced line.
func (r Rule) IsHourly() bool {
	return r.Method() == MethodPerUnit && strings.TrimSpace(r.UnitName) != ""
}

// DisplayName is the label used in feature lists and line items.
func (r Rule) DisplayName() string {
	if r.ServiceName != "" {
		return r.ServiceName
	}
	if r.Description != "" {
		return r.Description
	}
	return r.PricingRuleID
}

// Aggregate defines a named service-level total that formulas can reference.
type Aggregate struct {
	IncludePricingTypes []PricingType      `json:"includePricingTypes,omitempty" yaml:"includePricingTypes,omitempty"`
	ExcludePricingTypes []PricingType      `json:"excludePricingTypes,omitempty" yaml:"excludePricingTypes,omitempty"`
	IncludeFrequencies  []BillingFrequency `json:"includeFrequencies,omitempty" yaml:"includeFrequencies,omitempty"`
	ExcludeFrequencies  []BillingFrequency `json:"excludeFrequencies,omitempty" yaml:"excludeFrequencies,omitempty"`
	Minimum             float64            `json:"minimum,omitempty" yaml:"minimum,omitempty"`
}

// ServiceConfig is the tenant's metadata for one service area.
type ServiceConfig struct {
	ServiceID    string `json:"serviceId" yaml:"serviceId"`
	Title        string `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	DisplayOrder int    `json:"displayOrder" yaml:"displayOrder"`
	// FormSection is the answer-set section holding this service's fields. Defaults to the
	// camelCase form of ServiceID.
	FormSection string `json:"formSection,omitempty" yaml:"formSection,omitempty"`

	MinimumMonthlyFee float64  `json:"minimumMonthlyFee,omitempty" yaml:"minimumMonthlyFee,omitempty"`
	BaseFeeRuleIDs    []string `json:"baseFeeRuleIds,omitempty" yaml:"baseFeeRuleIds,omitempty"`
	// MinimumFeeAdvisoryDiscount discounts the minimum itself when advisory is selected. When zero
	// the largest discount among the eligible base-fee rules is used.
	MinimumFeeAdvisoryDiscount float64 `json:"minimumFeeAdvisoryDiscount,omitempty" yaml:"minimumFeeAdvisoryDiscount,omitempty"`

	Aggregates map[string]Aggregate `json:"aggregates,omitempty" yaml:"aggregates,omitempty"`
}

// Section returns the answer-set section name for the service.
func (s ServiceConfig) Section() string {
	if s.FormSection != "" {
		return s.FormSection
	}
	return SectionFor(s.ServiceID)
}

// SectionFor converts a kebab-case service id into its camelCase answer section.
func SectionFor(serviceID string) string {
	parts := strings.FieldsFunc(serviceID, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

// ServiceQuote is the priced summary of one service.
type ServiceQuote struct {
	ServiceID   string   `json:"serviceId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MonthlyFee  float64  `json:"monthlyFee"`
	OneTimeFee  float64  `json:"oneTimeFee"`
	Included    []string `json:"included"`
}

// HourlyService discloses an hourly rate that is not part of the totals.
type HourlyService struct {
	RuleID      string  `json:"ruleId"`
	Name        string  `json:"name"`
	Rate        float64 `json:"rate"`
	Unit        string  `json:"unit"`
	Description string  `json:"description,omitempty"`
}

// LineItem is a single priced rule shown outside the service summaries.
type LineItem struct {
	RuleID  string           `json:"ruleId"`
	Name    string           `json:"name"`
	Price   float64          `json:"price"`
	Billing BillingFrequency `json:"billingFrequency"`
}

// AppliedDiscount records a discount that changed the quote.
type AppliedDiscount struct {
	RuleID    string  `json:"ruleId"`
	ServiceID string  `json:"serviceId"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Source    string  `json:"source"`
}

// Discount sources.
const (
	DiscountSourceAdvisory = "advisory"
	DiscountSourceRule     = "rule"
	DiscountSourceMinimum  = "minimum-fee"
)

// QuoteData is the result of one quote calculation. It is never mutated after CalculateQuote returns.
type QuoteData struct {
	Services           []ServiceQuote    `json:"services"`
	HourlyServices     []HourlyService   `json:"hourlyServices"`
	AdditionalServices []LineItem        `json:"additionalServices"`
	AppliedDiscounts   []AppliedDiscount `json:"appliedDiscounts"`
	TotalMonthlyFees   float64           `json:"totalMonthlyFees"`
	TotalOneTimeFees   float64           `json:"totalOneTimeFees"`
	TotalAnnual        float64           `json:"totalAnnual"`
	PotentialSavings   float64           `json:"potentialSavings"`
	Recommendations    []string          `json:"recommendations"`
	Complexity         Complexity        `json:"complexity"`
	ComplexityScore    int               `json:"complexityScore"`
	Fallback           bool              `json:"fallback,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
}
