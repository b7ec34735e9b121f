package pricing

import (
	"strings"
	"unicode"
)

// Score weight for each multi-state, international or cross-border flag that is set.
const flagWeight = 2

// Answer paths read for the revenue and headcount bands, in order of preference.
var (
	revenuePaths = []string{
		"businessTax.annualRevenue",
		"bookkeeping.annualRevenue",
		"annualRevenue",
		"businessTax.revenue",
		"revenue",
	}
	employeePaths = []string{
		"businessTax.numberOfEmployees",
		"bookkeeping.numberOfEmployees",
		"payroll.numberOfEmployees",
		"numberOfEmployees",
		"employees",
	}
)

// ComplexityFor maps a score onto its tier.
func ComplexityFor(score int) Complexity {
	switch {
	case score >= 8:
		return ComplexityVeryHigh
	case score >= 5:
		return ComplexityHigh
	case score >= 2:
		return ComplexityMedium
	}
	return ComplexityLow
}

// ComplexityScore sums the revenue, entity and headcount bands and the special-situation flags
// found in the answers.
func ComplexityScore(answers Answers) int {
	score := 0
	if v, ok := bandValue(answers, revenuePaths, "revenue"); ok {
		score += revenueBand(v)
	}
	score += entityBand(answers)
	if v, ok := bandValue(answers, employeePaths, "employee"); ok {
		score += employeeBand(v)
	}
	for _, flag := range []string{"multistate", "international", "crossborder"} {
		if flagSet(answers, flag) {
			score += flagWeight
		}
	}
	return score
}

// bandValue reads the first non-empty named path, falling back to any leaf mentioning word.
func bandValue(answers Answers, paths []string, word string) (any, bool) {
	for _, p := range paths {
		if v, ok := answers.Get(p); ok && !isEmptyValue(v) {
			return v, true
		}
	}
	return firstLeaf(answers, word)
}

// firstLeaf returns the first answer, in path order, whose leaf name mentions word.
func firstLeaf(answers Answers, word string) (any, bool) {
	for _, p := range answers.Paths() {
		if strings.Contains(normalizeToken(leafName(p)), word) {
			v, _ := answers.Get(p)
			if !isEmptyValue(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func flagSet(answers Answers, word string) bool {
	for _, p := range answers.Paths() {
		if strings.Contains(normalizeToken(leafName(p)), word) && answers.Bool(p) {
			return true
		}
	}
	return false
}

func leafName(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func revenueBand(v any) int {
	amount, ok := v.(float64)
	if !ok {
		amount, ok = parseAmount(valueString(v))
		if !ok {
			return 0
		}
	}
	switch {
	case amount >= 5_000_000:
		return 4
	case amount >= 1_000_000:
		return 3
	case amount >= 500_000:
		return 2
	case amount >= 100_000:
		return 1
	}
	return 0
}

func entityBand(answers Answers) int {
	entity := EntityFromText(answers.String(FieldEntityType))
	if entity == "" {
		if v, ok := firstLeaf(answers, "entitytype"); ok {
			entity = EntityFromText(valueString(v))
		}
	}
	switch entity {
	case EntityPartnership, EntityLLC, EntitySCorp:
		return 1
	case EntityCCorp:
		return 2
	}
	return 0
}

func employeeBand(v any) int {
	n, ok := v.(float64)
	if !ok {
		n, ok = parseAmount(valueString(v))
		if !ok {
			return 0
		}
	}
	switch {
	case n > 50:
		return 3
	case n > 10:
		return 2
	case n >= 1:
		return 1
	}
	return 0
}

// parseAmount reads the first number in s, honouring k and m suffixes, so "$250k", "1M-5M" and
// "11-50" read as 250000, 1000000 and 11. "Under $100k" reads as just below 100000.
func parseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	under := strings.HasPrefix(s, "under") || strings.HasPrefix(s, "less than") || strings.HasPrefix(s, "<")

	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && (unicode.IsDigit(rune(s[end])) || s[end] == ',' || s[end] == '.') {
		end++
	}
	n, ok := parseLooseNumber(s[start:end])
	if !ok {
		return 0, false
	}
	if end < len(s) {
		switch s[end] {
		case 'k':
			n *= 1_000
		case 'm':
			n *= 1_000_000
		}
	}
	if under && n > 0 {
		n--
	}
	return n, true
}

// Recommendations returns the advice lines that apply to the answers.
func Recommendations(answers Answers, score int) []string {
	recs := []string{}
	advisory := answers.Selected(ServiceAdvisory)
	business := answers.Selected(ServiceBusinessTax)
	bookkeeping := answers.Selected(ServiceBookkeeping)

	if !advisory && score >= 3 {
		recs = append(recs, "Consider adding Tax Advisory for year-round planning given the complexity of your situation.")
	}
	if business && !bookkeeping {
		recs = append(recs, "Bundle Monthly Bookkeeping with Business Tax Preparation for cleaner books at year end.")
	}
	if bookkeeping && !business {
		recs = append(recs, "Add Business Tax Preparation so your books and returns are handled by one team.")
	}
	if answers.Selected(ServiceIndividualTax) && business && !advisory {
		recs = append(recs, "Coordinating your personal and business returns with an advisor can uncover additional savings.")
	}
	if flagSet(answers, "multistate") {
		recs = append(recs, "Multi-state activity detected: review state nexus and filing obligations.")
	}
	if flagSet(answers, "international") || flagSet(answers, "crossborder") {
		recs = append(recs, "International activity detected: foreign reporting requirements such as FBAR may apply.")
	}
	return recs
}
