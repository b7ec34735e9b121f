package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parseLooseNumber keeps only digits, '-' and '.', so "$1,250" parses as 1250.
func parseLooseNumber(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		return parseLooseNumber(t)
	case []string:
		if len(t) == 1 {
			return parseLooseNumber(t[0])
		}
	}
	return 0, false
}

// numberOrZero is the data-error policy: anything that is not a number counts as zero.
func numberOrZero(v any) float64 {
	f, _ := toNumber(v)
	return f
}

// roundCents rounds half away from zero to two decimal places.
func roundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// money accumulates prices without float drift.
type money struct {
	d decimal.Decimal
}

func (m *money) add(v float64) {
	m.d = m.d.Add(decimal.NewFromFloat(v))
}

func (m *money) sub(v float64) {
	m.d = m.d.Sub(decimal.NewFromFloat(v))
}

func (m money) float() float64 {
	return m.d.Round(2).InexactFloat64()
}
