package pricing

import (
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// SavingsRate is the share of the annual total quoted as potential savings.
const SavingsRate = 0.30

var defaultServiceNames = map[string]string{
	ServiceIndividualTax: "Individual Tax Preparation",
	ServiceBusinessTax:   "Business Tax Preparation",
	ServiceBookkeeping:   "Monthly Bookkeeping",
	ServiceAdvisory:      "Tax Advisory",
}

// DefaultServiceName is the display name used when a tenant does not title a service.
func DefaultServiceName(serviceID string) string {
	if name, ok := defaultServiceNames[serviceID]; ok {
		return name
	}
	return serviceID
}

// phase is one stage of the rule pipeline. Every non-formula rule is priced before any formula
// rule so formulas always see computed prices.
type phase struct {
	name    string
	formula bool
}

var (
	phaseBase    = phase{name: "base"}
	phaseFormula = phase{name: "formula", formula: true}

	pipeline = []phase{phaseBase, phaseFormula}
)

func (p phase) includes(rule Rule) bool {
	return (rule.Method() == MethodFormula) == p.formula
}

// orderRules returns rules in evaluation order: non-formula rules in input order, then formula
// rules in input order.
func orderRules(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, p := range pipeline {
		for _, r := range rules {
			if p.includes(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Engine computes quotes. It holds no per-quote state, so one Engine serves concurrent requests.
type Engine struct {
	log        *zap.Logger
	unresolved atomic.Int64
	failures   atomic.Int64
}

// NewEngine returns an Engine logging to log.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log.Named("pricing")}
}

// UnresolvedReferences is the number of formula references that resolved to nothing since the
// engine was created.
func (e *Engine) UnresolvedReferences() int64 {
	return e.unresolved.Load()
}

// FormulaFailures is the number of formulas that failed to parse or evaluate since the engine was
// created.
func (e *Engine) FormulaFailures() int64 {
	return e.failures.Load()
}

// serviceGroup accumulates the rules that contributed to one service.
type serviceGroup struct {
	serviceID string
	name      string
	included  []string

	monthly money
	oneTime money
	// baseMonthly is the monthly share coming from base-fee rules, for the minimum-fee floor.
	// baseMonthlyFull is the same share before advisory discounts.
	baseMonthly     money
	baseMonthlyFull money
	baseDiscPct     float64
	baseDiscounted  []string
}

type calculation struct {
	log      *zap.Logger
	answers  Answers
	pc       *PriceContext
	services map[string]ServiceConfig

	groups     map[string]*serviceGroup
	groupOrder []string

	monthly money
	oneTime money

	hourly     []HourlyService
	additional []LineItem
	discounts  []AppliedDiscount
}

// CalculateQuote prices form against rules. It never fails: bad rules contribute nothing and an
// empty rule set falls back to the default price table.
func (e *Engine) CalculateQuote(form FormData, rules []Rule, services []ServiceConfig) QuoteData {
	answers := NewAnswers(form)
	if len(rules) == 0 {
		e.log.Info("no pricing rules configured, using default price table")
		return e.fallbackQuote(answers)
	}

	c := &calculation{
		log:      e.log,
		answers:  answers,
		pc:       NewPriceContext(answers, services, e.log),
		services: make(map[string]ServiceConfig, len(services)),
		groups:   make(map[string]*serviceGroup),
	}
	for _, s := range services {
		c.services[s.ServiceID] = s
	}

	for _, rule := range orderRules(rules) {
		c.apply(rule)
	}
	c.applyMinimumFees()

	q := QuoteData{
		Services:           c.serviceQuotes(services),
		HourlyServices:     nonNil(c.hourly),
		AdditionalServices: nonNil(c.additional),
		AppliedDiscounts:   nonNil(c.discounts),
		TotalMonthlyFees:   math.Max(0, c.monthly.float()),
		TotalOneTimeFees:   math.Max(0, c.oneTime.float()),
	}
	for _, w := range c.pc.Unresolved() {
		q.Warnings = append(q.Warnings, w.Error())
	}
	for _, f := range c.pc.Failures() {
		q.Warnings = append(q.Warnings, f.Error())
	}
	e.unresolved.Add(int64(len(c.pc.Unresolved())))
	e.failures.Add(int64(len(c.pc.Failures())))

	finishQuote(&q, answers)
	return q
}

// finishQuote fills the fields derived from the totals and the answers.
func finishQuote(q *QuoteData, answers Answers) {
	q.ComplexityScore = ComplexityScore(answers)
	q.Complexity = ComplexityFor(q.ComplexityScore)
	q.Recommendations = Recommendations(answers, q.ComplexityScore)
	q.TotalAnnual = roundCents(q.TotalMonthlyFees*12 + q.TotalOneTimeFees)
	q.PotentialSavings = math.Round(q.TotalAnnual * SavingsRate)
}

func (c *calculation) apply(rule Rule) {
	log := c.log.With(zap.String("rule", rule.PricingRuleID), zap.String("service", rule.ServiceID))

	if !rule.Active {
		return
	}
	if !c.answers.Selected(rule.ServiceID) {
		return
	}

	switch {
	case rule.ServiceID == ServiceAdditionalServices && rule.PricingType == PricingTypeAddOn:
		if !c.filingSelected(rule) {
			return
		}
		if rule.IsHourly() {
			c.hourly = append(c.hourly, hourlyService(rule))
			return
		}
	case rule.HasTrigger():
		op := rule.ComparisonLogic
		if op == "" {
			op = OpEquals
		}
		section := c.pc.section(rule.ServiceID)
		if !evaluateCondition(log, c.answers, rule.TriggerFormField, section, rule.RequiredFormValue, op) {
			return
		}
	}

	if IsAdditionalOwnersRule(rule) {
		want := RuleEntity(rule)
		if want != "" && want != c.declaredEntity(rule) {
			return
		}
	}

	price, advisoryDiscount := rulePrice(rule, c.pc)
	c.pc.Record(rule, price)
	if price <= 0 {
		return
	}
	c.accumulate(rule, price, advisoryDiscount)
}

func (c *calculation) filingSelected(rule Rule) bool {
	want := strings.ToLower(strings.TrimSpace(rule.ServiceName))
	if want == "" {
		return false
	}
	for _, f := range c.answers.Strings(FieldFilings) {
		if strings.ToLower(strings.TrimSpace(f)) == want {
			return true
		}
	}
	return false
}

func (c *calculation) declaredEntity(rule Rule) string {
	if e := EntityFromText(c.answers.String(FieldEntityType)); e != "" {
		return e
	}
	v, _ := c.answers.Lookup("entityType", c.pc.section(rule.ServiceID))
	return EntityFromText(valueString(v))
}

func hourlyService(rule Rule) HourlyService {
	rate := rule.BasePrice
	if rule.UnitPrice != nil {
		rate = *rule.UnitPrice
	}
	return HourlyService{
		RuleID:      rule.PricingRuleID,
		Name:        rule.DisplayName(),
		Rate:        roundCents(rate),
		Unit:        rule.UnitName,
		Description: rule.Description,
	}
}

func (c *calculation) group(serviceID string) *serviceGroup {
	g, ok := c.groups[serviceID]
	if !ok {
		g = &serviceGroup{serviceID: serviceID}
		c.groups[serviceID] = g
		c.groupOrder = append(c.groupOrder, serviceID)
	}
	return g
}

func (c *calculation) accumulate(rule Rule, price, advisoryDiscount float64) {
	g := c.group(rule.ServiceID)
	if g.name == "" && rule.ServiceName != "" && rule.PricingType == PricingTypeBase {
		g.name = rule.ServiceName
	}

	bucket, total := &g.oneTime, &c.oneTime
	if rule.Billing == BillingMonthly {
		bucket, total = &g.monthly, &c.monthly
	}

	if rule.PricingType == PricingTypeDiscount {
		bucket.sub(price)
		total.sub(price)
		c.discounts = append(c.discounts, AppliedDiscount{
			RuleID:    rule.PricingRuleID,
			ServiceID: rule.ServiceID,
			Name:      rule.DisplayName(),
			Amount:    price,
			Source:    DiscountSourceRule,
		})
		return
	}

	bucket.add(price)
	total.add(price)
	g.included = append(g.included, rule.DisplayName())

	if advisoryDiscount > 0 {
		c.discounts = append(c.discounts, AppliedDiscount{
			RuleID:    rule.PricingRuleID,
			ServiceID: rule.ServiceID,
			Name:      rule.DisplayName(),
			Amount:    advisoryDiscount,
			Source:    DiscountSourceAdvisory,
		})
	}

	if rule.Billing == BillingMonthly && c.isBaseFeeRule(rule) {
		g.baseMonthly.add(price)
		g.baseMonthlyFull.add(price + advisoryDiscount)
		if advisoryDiscount > 0 {
			g.baseDiscounted = append(g.baseDiscounted, rule.PricingRuleID)
		}
		if rule.AdvisoryDiscountEligible && rule.AdvisoryDiscountPercentage > g.baseDiscPct {
			g.baseDiscPct = math.Min(rule.AdvisoryDiscountPercentage, 1)
		}
	}

	if rule.ServiceID == ServiceAdditionalServices {
		c.additional = append(c.additional, LineItem{
			RuleID:  rule.PricingRuleID,
			Name:    rule.DisplayName(),
			Price:   price,
			Billing: rule.Billing,
		})
	}
}

func (c *calculation) isBaseFeeRule(rule Rule) bool {
	cfg, ok := c.services[rule.ServiceID]
	if ok && len(cfg.BaseFeeRuleIDs) > 0 {
		for _, id := range cfg.BaseFeeRuleIDs {
			if id == rule.PricingRuleID {
				return true
			}
		}
		return false
	}
	return rule.PricingType == PricingTypeBase
}

// applyMinimumFees raises each floored service's base fee to its minimum. With advisory selected
// the minimum itself is discounted, and the base-fee advisory discounts it replaces give way to a
// single entry for the saving against the undiscounted charge.
func (c *calculation) applyMinimumFees() {
	for _, id := range c.groupOrder {
		cfg, ok := c.services[id]
		if !ok || cfg.MinimumMonthlyFee <= 0 {
			continue
		}
		g := c.groups[id]

		minimum := cfg.MinimumMonthlyFee
		var pct float64
		if c.pc.AdvisoryActive() {
			pct = cfg.MinimumFeeAdvisoryDiscount
			if pct <= 0 {
				pct = g.baseDiscPct
			}
			minimum = roundCents(minimum * (1 - math.Min(pct, 1)))
		}

		base := g.baseMonthly.float()
		if base >= minimum {
			continue
		}
		delta := minimum - base
		g.monthly.add(delta)
		c.monthly.add(delta)
		if c.pc.AdvisoryActive() {
			c.dropAdvisoryDiscounts(id, g.baseDiscounted)
			full := math.Max(g.baseMonthlyFull.float(), cfg.MinimumMonthlyFee)
			if saved := roundCents(full - minimum); saved > 0 {
				c.discounts = append(c.discounts, AppliedDiscount{
					ServiceID: id,
					Name:      "Minimum monthly fee",
					Amount:    saved,
					Source:    DiscountSourceMinimum,
				})
			}
		}
		c.log.Debug("minimum monthly fee applied",
			zap.String("service", id),
			zap.Float64("base", base),
			zap.Float64("minimum", minimum),
		)
	}
}

func (c *calculation) dropAdvisoryDiscounts(serviceID string, ruleIDs []string) {
	if len(ruleIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		drop[id] = true
	}
	kept := c.discounts[:0]
	for _, d := range c.discounts {
		if d.Source == DiscountSourceAdvisory && d.ServiceID == serviceID && drop[d.RuleID] {
			continue
		}
		kept = append(kept, d)
	}
	c.discounts = kept
}

// serviceQuotes emits one entry per contributing service in display order. Services the tenant
// did not configure follow in the order they first contributed.
func (c *calculation) serviceQuotes(services []ServiceConfig) []ServiceQuote {
	configured := append([]ServiceConfig(nil), services...)
	sort.SliceStable(configured, func(i, j int) bool {
		return configured[i].DisplayOrder < configured[j].DisplayOrder
	})

	order := make([]string, 0, len(c.groups))
	seen := make(map[string]bool, len(c.groups))
	for _, s := range configured {
		if _, ok := c.groups[s.ServiceID]; ok && !seen[s.ServiceID] {
			order = append(order, s.ServiceID)
			seen[s.ServiceID] = true
		}
	}
	for _, id := range c.groupOrder {
		if !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}

	out := make([]ServiceQuote, 0, len(order))
	for _, id := range order {
		if id == ServiceAdditionalServices {
			continue
		}
		g := c.groups[id]
		cfg := c.services[id]
		name := cfg.Title
		if name == "" {
			name = DefaultServiceName(id)
		}
		if name == id && g.name != "" {
			name = g.name
		}
		out = append(out, ServiceQuote{
			ServiceID:   id,
			Name:        name,
			Description: cfg.Description,
			MonthlyFee:  math.Max(0, g.monthly.float()),
			OneTimeFee:  math.Max(0, g.oneTime.float()),
			Included:    nonNil(g.included),
		})
	}

	if !c.pc.AdvisoryActive() {
		out = individualTaxFirst(out)
	}
	return out
}

func individualTaxFirst(quotes []ServiceQuote) []ServiceQuote {
	for i, q := range quotes {
		if q.ServiceID != ServiceIndividualTax || i == 0 {
			continue
		}
		copy(quotes[1:i+1], quotes[:i])
		quotes[0] = q
		break
	}
	return quotes
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
