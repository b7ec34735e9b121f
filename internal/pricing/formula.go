package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.uber.org/zap"
)

// Reference roots available inside formula expressions. Any other root name is taken to be a
// pricing rule id.
const (
	refRules    = "rules"
	refServices = "services"
	refForm     = "form"
	refAnswers  = "answers"
	refSelected = "selected"
	refAdvisory = "advisory"
)

// Built-in aggregate names every service exposes.
const (
	AggregateTotal   = "total"
	AggregateMonthly = "monthly"
	AggregateOneTime = "oneTime"
)

// UnresolvedReferenceError is reported when a formula names something that does not exist in
// the current calculation. The reference evaluates to 0.
type UnresolvedReferenceError struct {
	RuleID    string
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("rule %s: unresolved reference %q", e.RuleID, e.Reference)
}

// FormulaError is reported when a formula cannot be parsed or evaluated. The rule prices at 0.
type FormulaError struct {
	RuleID string
	Err    error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *FormulaError) Unwrap() error {
	return e.Err
}

var roundFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
	},
	VarParam: &function.Parameter{Name: "places", Type: cty.Number},
	Type:     function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		f, _ := args[0].AsBigFloat().Float64()
		places := int64(0)
		if len(args) > 1 {
			places, _ = args[1].AsBigFloat().Int64()
		}
		return cty.NumberFloatVal(decimal.NewFromFloat(f).Round(int32(places)).InexactFloat64()), nil
	},
})

var formulaFunctions = map[string]function.Function{
	"min":   stdlib.MinFunc,
	"max":   stdlib.MaxFunc,
	"abs":   stdlib.AbsoluteFunc,
	"ceil":  stdlib.CeilFunc,
	"floor": stdlib.FloorFunc,
	"round": roundFunc,
}

// ParseFormula checks that src is a well-formed formula expression.
func ParseFormula(src string) error {
	_, err := parseFormula(src)
	return err
}

func parseFormula(src string) (hclsyntax.Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty formula expression")
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "formula", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse formula: %w", diags)
	}
	if err := checkReferencePaths(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// checkReferencePaths rejects formulas that use a name both as a value and as an object, such as
// services.bookkeeping next to services.bookkeeping.monthly. No binding can satisfy both.
func checkReferencePaths(expr hclsyntax.Expression) error {
	var paths []string
	for _, traversal := range expr.Variables() {
		paths = append(paths, strings.Join(append([]string{traversal.RootName()}, traversalNames(traversal)...), "."))
	}
	sort.Strings(paths)
	for _, short := range paths {
		for _, long := range paths {
			if !strings.HasPrefix(long, short+".") {
				continue
			}
			if parts := strings.Split(short, "."); len(parts) == 2 && parts[0] == refServices {
				return fmt.Errorf("formula uses both %s and %s; write %s.%s for the service total", short, long, short, AggregateTotal)
			}
			return fmt.Errorf("formula uses %s both as a value and as an object (%s)", short, long)
		}
	}
	return nil
}

// CheckFormulaNames reports a bare name that is a known rule id followed by a dash, such as
// bk-base-100. Dashes are part of names, so subtraction needs spaces around the minus sign.
func CheckFormulaNames(src string, ruleIDs map[string]bool) error {
	expr, err := parseFormula(src)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(ruleIDs))
	for id := range ruleIDs {
		ids = append(ids, id)
	}
	// longest first so bk-base-fee wins over bk-base
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) > len(ids[j])
		}
		return ids[i] < ids[j]
	})

	for _, traversal := range expr.Variables() {
		name := traversal.RootName()
		if segs := traversalNames(traversal); name == refRules && len(segs) > 0 {
			name = segs[0]
		} else if isReservedRoot(name) {
			continue
		}
		if ruleIDs[name] {
			continue
		}
		for _, id := range ids {
			if rest, ok := strings.CutPrefix(name, id+"-"); ok && rest != "" {
				return fmt.Errorf("formula name %q is not a rule; put spaces around the minus sign (%s - %s)", name, id, rest)
			}
		}
	}
	return nil
}

func isReservedRoot(name string) bool {
	switch name {
	case refRules, refServices, refForm, refAnswers, refSelected, refAdvisory:
		return true
	}
	return false
}

// evaluateFormula computes a formula rule's price. Parse and evaluation failures are recorded on pc
// and yield 0.
func evaluateFormula(rule Rule, pc *PriceContext) float64 {
	expr, err := parseFormula(rule.FormulaExpression)
	if err != nil {
		pc.formulaFailed(rule, err)
		return 0
	}

	vars := make(map[string]any)
	for _, traversal := range expr.Variables() {
		pc.bindReference(rule, traversal, vars)
	}

	val, err := evalExpression(expr, &hcl.EvalContext{
		Variables: toCtyVariables(vars),
		Functions: formulaFunctions,
	})
	if err != nil {
		pc.formulaFailed(rule, fmt.Errorf("evaluate %q: %w", rule.FormulaExpression, err))
		return 0
	}

	f, ok := ctyToFloat(val)
	if !ok {
		pc.formulaFailed(rule, fmt.Errorf("formula %q did not produce a number", rule.FormulaExpression))
		return 0
	}
	if rule.MinimumValue != nil && f < *rule.MinimumValue {
		f = *rule.MinimumValue
	}
	if rule.MaximumValue != nil && f > *rule.MaximumValue {
		f = *rule.MaximumValue
	}
	return f
}

func evalExpression(expr hclsyntax.Expression, ctx *hcl.EvalContext) (val cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formula panicked: %v", r)
		}
	}()
	v, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return v, nil
}

// bindReference resolves one traversal into vars, recording unresolved names as 0.
func (pc *PriceContext) bindReference(rule Rule, traversal hcl.Traversal, vars map[string]any) {
	root := traversal.RootName()
	segs := traversalNames(traversal)

	switch root {
	case refAdvisory:
		vars[refAdvisory] = pc.advisory
	case refSelected:
		if len(segs) == 0 {
			return
		}
		setNested(vars, []string{refSelected, segs[0]}, pc.answers.Selected(segs[0]))
	case refRules:
		if len(segs) == 0 {
			return
		}
		setNested(vars, []string{refRules, segs[0]}, pc.rulePriceRef(rule, segs[0]))
	case refServices:
		if len(segs) == 0 {
			return
		}
		name := AggregateTotal
		path := []string{refServices, segs[0]}
		if len(segs) > 1 {
			name = segs[1]
			path = append(path, name)
		}
		total, ok := pc.serviceAggregate(segs[0], name)
		if !ok {
			pc.unresolvedRef(rule, strings.Join(path, "."))
		}
		setNested(vars, path, total)
	case refForm, refAnswers:
		if len(segs) == 0 {
			return
		}
		path := strings.Join(segs, ".")
		v, ok := pc.answers.Lookup(path, pc.section(rule.ServiceID))
		if !ok {
			pc.unresolvedRef(rule, root+"."+path)
			setNested(vars, append([]string{root}, segs...), 0.0)
			return
		}
		setNested(vars, append([]string{root}, segs...), formulaValue(v))
	default:
		setNested(vars, []string{root}, pc.rulePriceRef(rule, root))
	}
}

func (pc *PriceContext) rulePriceRef(rule Rule, id string) float64 {
	if p, ok := pc.prices[id]; ok {
		return p
	}
	pc.unresolvedRef(rule, id)
	return 0
}

func (pc *PriceContext) unresolvedRef(rule Rule, ref string) {
	err := &UnresolvedReferenceError{RuleID: rule.PricingRuleID, Reference: ref}
	pc.unresolved = append(pc.unresolved, err)
	pc.log.Warn("formula reference unresolved",
		zap.String("rule", rule.PricingRuleID),
		zap.String("reference", ref),
	)
}

func (pc *PriceContext) formulaFailed(rule Rule, err error) {
	pc.failed = append(pc.failed, &FormulaError{RuleID: rule.PricingRuleID, Err: err})
	pc.log.Warn("formula failed", zap.String("rule", rule.PricingRuleID), zap.Error(err))
}

// serviceAggregate sums the recorded prices of serviceID that match the named aggregate.
func (pc *PriceContext) serviceAggregate(serviceID, name string) (float64, bool) {
	agg, ok := pc.aggregate(serviceID, name)
	if !ok {
		return 0, false
	}

	var sum money
	contributed := false
	for _, id := range pc.order {
		m := pc.meta[id]
		if m.ServiceID != serviceID || m.Price <= 0 || !agg.matches(m) {
			continue
		}
		contributed = true
		if m.PricingType == PricingTypeDiscount {
			sum.sub(m.Price)
		} else {
			sum.add(m.Price)
		}
	}
	total := sum.float()
	if contributed && agg.Minimum > 0 && total < agg.Minimum {
		total = agg.Minimum
	}
	return total, true
}

func (pc *PriceContext) aggregate(serviceID, name string) (Aggregate, bool) {
	cfg, configured := pc.services[serviceID]
	if configured {
		if agg, ok := cfg.Aggregates[name]; ok {
			return agg, true
		}
	} else if !pc.knownService(serviceID) {
		return Aggregate{}, false
	}
	switch name {
	case AggregateTotal:
		return Aggregate{}, true
	case AggregateMonthly:
		return Aggregate{IncludeFrequencies: []BillingFrequency{BillingMonthly}}, true
	case AggregateOneTime:
		return Aggregate{IncludeFrequencies: []BillingFrequency{BillingOneTime, BillingAnnual}}, true
	}
	return Aggregate{}, false
}

// knownService reports whether an unconfigured service id still means something in this
// calculation: it was selected or one of its rules has been priced.
func (pc *PriceContext) knownService(serviceID string) bool {
	if pc.answers.Selected(serviceID) {
		return true
	}
	for _, id := range pc.order {
		if pc.meta[id].ServiceID == serviceID {
			return true
		}
	}
	return false
}

func (a Aggregate) matches(m PriceMetadata) bool {
	if len(a.IncludePricingTypes) > 0 && !containsType(a.IncludePricingTypes, m.PricingType) {
		return false
	}
	if containsType(a.ExcludePricingTypes, m.PricingType) {
		return false
	}
	if len(a.IncludeFrequencies) > 0 && !containsFrequency(a.IncludeFrequencies, m.Billing) {
		return false
	}
	return !containsFrequency(a.ExcludeFrequencies, m.Billing)
}

func containsType(list []PricingType, t PricingType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsFrequency(list []BillingFrequency, f BillingFrequency) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

// traversalNames returns the attribute and string-index steps after the root.
func traversalNames(t hcl.Traversal) []string {
	var names []string
	for _, step := range t[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			names = append(names, s.Name)
		case hcl.TraverseIndex:
			if s.Key.Type() != cty.String || !s.Key.IsKnown() || s.Key.IsNull() {
				return names
			}
			names = append(names, s.Key.AsString())
		default:
			return names
		}
	}
	return names
}

// formulaValue converts an answer into something arithmetic can use: lists count their items and
// numeric-looking strings become numbers.
func formulaValue(v any) any {
	switch t := v.(type) {
	case nil:
		return 0.0
	case float64, bool:
		return t
	case []string:
		return float64(len(t))
	case string:
		if f, ok := parseLooseNumber(t); ok {
			return f
		}
		return t
	}
	return 0.0
}

// setNested places value at path, leaving earlier bindings alone when the shapes collide.
func setNested(vars map[string]any, path []string, value any) {
	m := vars
	for _, key := range path[:len(path)-1] {
		next, exists := m[key]
		if !exists {
			child := make(map[string]any)
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	leaf := path[len(path)-1]
	if _, exists := m[leaf]; !exists {
		m[leaf] = value
	}
}

func toCtyVariables(vars map[string]any) map[string]cty.Value {
	out := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		out[k] = toCty(v)
	}
	return out
}

func toCty(v any) cty.Value {
	switch t := v.(type) {
	case map[string]any:
		return cty.ObjectVal(toCtyVariables(t))
	case float64:
		return cty.NumberFloatVal(t)
	case bool:
		return cty.BoolVal(t)
	case string:
		return cty.StringVal(t)
	}
	return cty.NumberIntVal(0)
}

func ctyToFloat(v cty.Value) (float64, bool) {
	if v.IsNull() || !v.IsKnown() {
		return 0, false
	}
	n, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, false
	}
	f, _ := n.AsBigFloat().Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
