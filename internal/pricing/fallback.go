package pricing

import "math"

type defaultPrice struct {
	monthly  float64
	oneTime  float64
	included []string
}

// defaultPrices is used when a tenant has no pricing rules at all.
var defaultPrices = map[string]defaultPrice{
	ServiceIndividualTax: {oneTime: 300, included: []string{"Federal and state return", "E-filing"}},
	ServiceBusinessTax:   {oneTime: 800, included: []string{"Business return preparation", "Owner K-1s"}},
	ServiceBookkeeping:   {monthly: 400, included: []string{"Monthly reconciliation", "Financial statements"}},
	ServiceAdvisory:      {monthly: 500, included: []string{"Quarterly planning sessions", "Tax projections"}},
}

var defaultOrder = []string{ServiceIndividualTax, ServiceBusinessTax, ServiceBookkeeping, ServiceAdvisory}

var complexityMultipliers = map[Complexity]float64{
	ComplexityLow:      1.0,
	ComplexityMedium:   1.25,
	ComplexityHigh:     1.5,
	ComplexityVeryHigh: 2.0,
}

func (e *Engine) fallbackQuote(answers Answers) QuoteData {
	score := ComplexityScore(answers)
	mult := complexityMultipliers[ComplexityFor(score)]

	var ids []string
	for _, id := range defaultOrder {
		if answers.Selected(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []string{ServiceIndividualTax}
	}

	q := QuoteData{
		Services:           make([]ServiceQuote, 0, len(ids)),
		HourlyServices:     []HourlyService{},
		AdditionalServices: []LineItem{},
		AppliedDiscounts:   []AppliedDiscount{},
		Fallback:           true,
	}
	var monthly, oneTime money
	for _, id := range ids {
		p := defaultPrices[id]
		sq := ServiceQuote{
			ServiceID:  id,
			Name:       DefaultServiceName(id),
			MonthlyFee: roundCents(p.monthly * mult),
			OneTimeFee: roundCents(p.oneTime * mult),
			Included:   append([]string(nil), p.included...),
		}
		monthly.add(sq.MonthlyFee)
		oneTime.add(sq.OneTimeFee)
		q.Services = append(q.Services, sq)
	}
	q.TotalMonthlyFees = math.Max(0, monthly.float())
	q.TotalOneTimeFees = math.Max(0, oneTime.float())

	finishQuote(&q, answers)
	return q
}
