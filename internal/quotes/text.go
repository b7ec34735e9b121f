package quotes

import (
	"fmt"
	"io"
	"strings"

	"github.com/Simplici0/quotewizard/internal/pricing"
)

// WriteText renders a plain-text summary of a quote, suitable for pasting into an email.
func WriteText(w io.Writer, contact pricing.Contact, q pricing.QuoteData) error {
	var b strings.Builder

	if name := contact.FullName(); name != "" {
		fmt.Fprintf(&b, "Prepared for: %s", name)
		if contact.Company != "" {
			fmt.Fprintf(&b, " (%s)", contact.Company)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("Services:\n")
	for _, s := range q.Services {
		fmt.Fprintf(&b, "- %s: %s/month, %s one-time\n", s.Name, money(s.MonthlyFee), money(s.OneTimeFee))
		for _, inc := range s.Included {
			fmt.Fprintf(&b, "    * %s\n", inc)
		}
	}
	if len(q.AdditionalServices) > 0 {
		b.WriteString("\nAdditional services:\n")
		for _, li := range q.AdditionalServices {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", li.Name, money(li.Price), li.Billing)
		}
	}
	if len(q.HourlyServices) > 0 {
		b.WriteString("\nBilled hourly:\n")
		for _, h := range q.HourlyServices {
			fmt.Fprintf(&b, "- %s: %s per %s\n", h.Name, money(h.Rate), h.Unit)
		}
	}
	if len(q.AppliedDiscounts) > 0 {
		b.WriteString("\nDiscounts:\n")
		for _, d := range q.AppliedDiscounts {
			fmt.Fprintf(&b, "- %s: -%s\n", d.Name, money(d.Amount))
		}
	}

	b.WriteString("\nTotals:\n")
	fmt.Fprintf(&b, "Monthly: %s\n", money(q.TotalMonthlyFees))
	fmt.Fprintf(&b, "One-time: %s\n", money(q.TotalOneTimeFees))
	fmt.Fprintf(&b, "First year: %s\n", money(q.TotalAnnual))
	if q.PotentialSavings > 0 {
		fmt.Fprintf(&b, "Potential tax savings: %s\n", money(q.PotentialSavings))
	}
	fmt.Fprintf(&b, "Complexity: %s\n", q.Complexity)

	if len(q.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range q.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
