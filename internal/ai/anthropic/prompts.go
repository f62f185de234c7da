package anthropic

import (
	"fmt"
	"strings"
	"time"
)

// AuditNarrativeSystemPrompt frames the model as a report writer for
// property inspection audits.
const AuditNarrativeSystemPrompt = `You are a professional property inspection report writer. You turn raw audit findings into clear, objective narrative prose for a formal inspection report.

Rules:
- Write in third person, past tense.
- Do not speculate beyond the findings given.
- Do not include headings, bullet points, or markdown. Produce plain paragraphs.
- Keep the narrative under 500 words.`

// OverviewNarrativeSystemPrompt frames the model as a summary writer for
// location activity overviews.
const OverviewNarrativeSystemPrompt = `You are a professional property operations analyst. You summarize inspection activity at a location over a date range into clear narrative prose for a summary report.

Rules:
- Write in third person.
- Do not speculate beyond the data given.
- Do not include headings, bullet points, or markdown. Produce plain paragraphs.
- Keep the summary under 300 words.`

// BuildAuditNarrativePrompt assembles the user prompt for an audit report
// narrative.
func BuildAuditNarrativePrompt(address, notes, recommendations string, findings []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write the narrative section for an inspection report of the property at %s.\n\n", address)

	if len(findings) > 0 {
		sb.WriteString("Audit findings:\n")
		for _, f := range findings {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}

	if notes != "" {
		fmt.Fprintf(&sb, "Inspector notes:\n%s\n\n", notes)
	}

	if recommendations != "" {
		fmt.Fprintf(&sb, "Recommendations to incorporate:\n%s\n", recommendations)
	}

	return sb.String()
}

// BuildOverviewNarrativePrompt assembles the user prompt for a location
// overview narrative.
func BuildOverviewNarrativePrompt(locationName string, start, end time.Time, activity []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write a summary of inspection activity at %s between %s and %s.\n\n",
		locationName,
		start.Format("January 2, 2006"),
		end.Format("January 2, 2006"),
	)

	if len(activity) > 0 {
		sb.WriteString("Activity in this period:\n")
		for _, a := range activity {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
	} else {
		sb.WriteString("No inspection activity was recorded in this period. State that plainly.\n")
	}

	return sb.String()
}
