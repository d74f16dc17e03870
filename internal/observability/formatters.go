// Package observability provides formatted output utilities for the CLI's dry-run and
// one-shot commands.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/offer-ingest/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// PrintOffer outputs a human-readable summary of a normalized offer.
func (p *Printer) PrintOffer(offer *types.NormalizedOffer) {
	if offer == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:   %s\n", offer.Source))
	sb.WriteString(fmt.Sprintf("ID:       %s\n", offer.ExternalID))
	sb.WriteString(fmt.Sprintf("Title:    %s\n", offer.Title))
	sb.WriteString(fmt.Sprintf("Company:  %s\n", orDash(offer.CompanyName)))
	sb.WriteString(fmt.Sprintf("City:     %s\n", orDash(offer.CityName)))
	if offer.Remote != nil {
		sb.WriteString(fmt.Sprintf("Remote:   %t\n", *offer.Remote))
	}
	sb.WriteString(fmt.Sprintf("Level:    %s\n", orDash(string(offer.Level))))
	if len(offer.Contracts) > 0 {
		contracts := make([]string, len(offer.Contracts))
		for i, c := range offer.Contracts {
			contracts[i] = string(c)
		}
		sb.WriteString(fmt.Sprintf("Contract: %s (main %s)\n", strings.Join(contracts, ", "), offer.MainContract))
	}
	sb.WriteString(fmt.Sprintf("Salary:   %s\n", formatSalary(offer)))
	if offer.Active != nil && !*offer.Active {
		sb.WriteString("Active:   false\n")
	}

	if len(offer.Skills) > 0 {
		sb.WriteString("\nSkills:\n")
		count := min(len(offer.Skills), maxItemsToShow)
		for i := 0; i < count; i++ {
			skill := offer.Skills[i]
			sb.WriteString(fmt.Sprintf("  • %s", skill.Name))
			if skill.Proficiency != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", skill.Proficiency))
			}
			sb.WriteString("\n")
		}
		if len(offer.Skills) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(offer.Skills)-maxItemsToShow))
		}
	}

	if len(offer.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("\nTags: %s\n", strings.Join(offer.Tags, ", ")))
	}

	p.printBox("PARSED OFFER", strings.TrimSuffix(sb.String(), "\n"))
}

func formatSalary(offer *types.NormalizedOffer) string {
	if !offer.HasSalary() {
		return "-"
	}
	s := fmt.Sprintf("%s-%s %s", formatAmount(offer.SalaryMin), formatAmount(offer.SalaryMax), offer.SalaryCurrency)
	if offer.SalaryPeriod != "" {
		s += " / " + string(offer.SalaryPeriod)
	}
	if offer.SalaryMinMonthly != nil && offer.SalaryMaxMonthly != nil && offer.SalaryPeriod != types.PeriodMonth {
		s += fmt.Sprintf(" (monthly %d-%d)", *offer.SalaryMinMonthly, *offer.SalaryMaxMonthly)
	}
	return strings.TrimSpace(s)
}

func formatAmount(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.0f", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintDiscovered outputs the URLs one discovery run produced.
func (p *Printer) PrintDiscovered(source types.Source, urls []string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d offer URLs:\n\n", len(urls)))

	count := min(len(urls), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("• %s\n", urls[i]))
	}
	if len(urls) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more", len(urls)-maxItemsToShow))
	}

	p.printBox(fmt.Sprintf("DISCOVERY %s", source), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStaleSweep outputs per-source deactivation counts in source order.
func (p *Printer) PrintStaleSweep(counts map[types.Source]int) {
	var sb strings.Builder
	total := 0
	for _, source := range types.AllSources() {
		n, ok := counts[source]
		if !ok {
			continue
		}
		total += n
		sb.WriteString(fmt.Sprintf("%-12s %d\n", source, n))
	}
	sb.WriteString(fmt.Sprintf("\nTotal deactivated: %d", total))

	p.printBox("STALE SWEEP", sb.String())
}

// PrintRetentionSweep outputs how many offers were archived.
func (p *Printer) PrintRetentionSweep(archived int) {
	p.printBox("RETENTION SWEEP", fmt.Sprintf("Archived: %d", archived))
}
