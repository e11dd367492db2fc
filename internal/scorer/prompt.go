package scorer

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowstack-agency/leadflow/internal/model"
)

const scoringSystemPrompt = `You are a lead qualification analyst for an automation agency that builds custom workflow automation for small and mid-size businesses. You evaluate inbound contact-form submissions and score how sales-ready each lead is.

Respond with ONLY a JSON object, no prose and no code fences, matching exactly this shape:
{
  "score": <integer 0-100>,
  "category": "hot" | "warm" | "cold" | "unqualified",
  "reasoning": "<2-3 sentences>",
  "budget_indicator": "high" | "medium" | "low" | "unknown",
  "urgency_indicator": "high" | "medium" | "low",
  "decision_maker_likelihood": <integer 0-100>,
  "industry_fit_score": <integer 0-100>,
  "recommended_followup_sequence": "immediate" | "standard" | "nurture" | "minimal",
  "key_talking_points": ["<point>", ...]
}`

// buildScoringPrompt renders the user prompt for one submission. Optional
// fields render as "not provided" so the model never sees bare blanks.
func buildScoringPrompt(sub *model.Submission, now time.Time) string {
	var b strings.Builder
	b.WriteString("Evaluate this inbound lead submitted via our website contact form.\n\n")
	fmt.Fprintf(&b, "Today's date: %s\n\n", now.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "Full name: %s\n", orNotProvided(sub.FullName))
	fmt.Fprintf(&b, "Email: %s\n", sub.Email)
	fmt.Fprintf(&b, "Phone: %s\n", orNotProvided(sub.Phone))
	fmt.Fprintf(&b, "Business name: %s\n", orNotProvided(sub.BusinessName))
	fmt.Fprintf(&b, "Website: %s\n", orNotProvided(sub.Website))
	fmt.Fprintf(&b, "Message: %s\n", orNotProvided(sub.Message))
	b.WriteString("\nReturn the JSON object only.")
	return b.String()
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return s
}
