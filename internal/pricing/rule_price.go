package pricing

import (
	"math"
	"strings"

	"go.uber.org/zap"
)

// PriceMetadata describes a computed rule price for service aggregates.
type PriceMetadata struct {
	RuleID      string
	ServiceID   string
	PricingType PricingType
	Billing     BillingFrequency
	Price       float64
}

// PriceContext carries everything a single quote calculation shares between rules: the answers,
// whether advisory is active, and the prices computed so far. It belongs to one calculation and
// must not be shared between goroutines.
type PriceContext struct {
	answers  Answers
	advisory bool
	services map[string]ServiceConfig
	log      *zap.Logger

	prices map[string]float64
	meta   map[string]PriceMetadata
	// order keeps aggregate sums independent of map iteration.
	order []string

	unresolved []*UnresolvedReferenceError
	failed     []*FormulaError
}

// NewPriceContext builds an empty context for one calculation.
func NewPriceContext(answers Answers, services []ServiceConfig, log *zap.Logger) *PriceContext {
	if log == nil {
		log = zap.NewNop()
	}
	pc := &PriceContext{
		answers:  answers,
		advisory: answers.Selected(ServiceAdvisory),
		services: make(map[string]ServiceConfig, len(services)),
		log:      log,
		prices:   make(map[string]float64),
		meta:     make(map[string]PriceMetadata),
	}
	for _, s := range services {
		pc.services[s.ServiceID] = s
	}
	return pc
}

// AdvisoryActive reports whether the advisory service is among the selections.
func (pc *PriceContext) AdvisoryActive() bool {
	return pc.advisory
}

// Record stores a rule's computed price. Each rule is recorded at most once per calculation;
// later records for the same id are ignored.
func (pc *PriceContext) Record(rule Rule, price float64) {
	if _, seen := pc.prices[rule.PricingRuleID]; seen {
		return
	}
	pc.prices[rule.PricingRuleID] = price
	pc.meta[rule.PricingRuleID] = PriceMetadata{
		RuleID:      rule.PricingRuleID,
		ServiceID:   rule.ServiceID,
		PricingType: rule.PricingType,
		Billing:     rule.Billing,
		Price:       price,
	}
	pc.order = append(pc.order, rule.PricingRuleID)
}

// Price returns the recorded price for ruleID.
func (pc *PriceContext) Price(ruleID string) (float64, bool) {
	p, ok := pc.prices[ruleID]
	return p, ok
}

// Unresolved returns the formula references that could not be resolved so far.
func (pc *PriceContext) Unresolved() []*UnresolvedReferenceError {
	return pc.unresolved
}

// Failures returns the formulas that failed to parse or evaluate so far.
func (pc *PriceContext) Failures() []*FormulaError {
	return pc.failed
}

func (pc *PriceContext) section(serviceID string) string {
	if cfg, ok := pc.services[serviceID]; ok {
		return cfg.Section()
	}
	return SectionFor(serviceID)
}

// RulePrice computes one rule's price rounded to cents. It does not record the price; the caller
// does. Formula rules append their unresolved references and failures to pc.
func RulePrice(rule Rule, pc *PriceContext) float64 {
	price, _ := rulePrice(rule, pc)
	return price
}

// rulePrice also returns the advisory discount that was taken off.
func rulePrice(rule Rule, pc *PriceContext) (price, discount float64) {
	switch rule.Method() {
	case MethodFormula:
		return roundCents(evaluateFormula(rule, pc)), 0
	case MethodPerUnit:
		price = perUnitPrice(rule, pc)
	default:
		price = rule.BasePrice
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}

	if pc.advisory && rule.AdvisoryDiscountEligible && rule.AdvisoryDiscountPercentage > 0 {
		pct := math.Min(rule.AdvisoryDiscountPercentage, 1)
		full := roundCents(price)
		price = roundCents(price * (1 - pct))
		return price, roundCents(full - price)
	}
	return roundCents(price), 0
}

func perUnitPrice(rule Rule, pc *PriceContext) float64 {
	if strings.TrimSpace(rule.QuantitySourceField) == "" || rule.UnitPrice == nil {
		return rule.BasePrice
	}
	v, _ := pc.answers.Lookup(rule.QuantitySourceField, pc.section(rule.ServiceID))
	quantity := numberOrZero(v)

	if IsAdditionalOwnersRule(rule) {
		entity := EntityFromText(pc.answers.String(FieldEntityType))
		if entity == "" {
			entity = RuleEntity(rule)
		}
		quantity = math.Max(0, quantity-float64(OwnerThreshold(entity)))
	}
	return quantity * *rule.UnitPrice
}

// Entity types understood by the owner-count rules.
const (
	EntityPartnership = "partnership"
	EntityLLC         = "llc"
	EntitySCorp       = "s-corp"
	EntityCCorp       = "c-corp"
	EntitySoleProp    = "sole-proprietorship"
)

// IsAdditionalOwnersRule reports whether the rule belongs to the owner-count fee family.
func IsAdditionalOwnersRule(rule Rule) bool {
	id := normalizeToken(rule.PricingRuleID)
	return strings.Contains(id, "additionalowner") || strings.Contains(id, "extraowner")
}

// RuleEntity is the entity type a rule targets: the explicit EntityType, else whatever the
// rule id names.
func RuleEntity(rule Rule) string {
	if e := EntityFromText(rule.EntityType); e != "" {
		return e
	}
	return EntityFromText(rule.PricingRuleID)
}

// EntityFromText recognises an entity type in free text, returning "" when none is named.
// S-Corp and C-Corp are checked first so "LLC taxed as S-Corp" counts as an S-Corp.
func EntityFromText(s string) string {
	t := normalizeToken(s)
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "scorp"):
		return EntitySCorp
	case strings.Contains(t, "ccorp"):
		return EntityCCorp
	case strings.Contains(t, "partnership"):
		return EntityPartnership
	case strings.Contains(t, "llc"):
		return EntityLLC
	case strings.Contains(t, "soleprop"):
		return EntitySoleProp
	}
	return ""
}

// OwnerThreshold is the number of owners included in the base fee for an entity type.
func OwnerThreshold(entity string) int {
	switch entity {
	case EntityPartnership, EntityLLC:
		return 2
	case EntitySCorp, EntityCCorp:
		return 1
	}
	return 0
}
