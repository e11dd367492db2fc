package executor

import (
	"fmt"
	"strings"

	"github.com/flowstack-agency/leadflow/internal/model"
)

const emailSystemPrompt = `You write short follow-up emails for an automation agency that builds custom workflow automation for small and mid-size businesses. Keep the tone warm and concrete, under 150 words, no pushy sales language.

Respond with ONLY a JSON object, no prose and no code fences:
{
  "subject": "<subject line>",
  "body": "<plain text body, paragraphs separated by blank lines>",
  "cta_text": "<optional call-to-action label>",
  "cta_url": "<optional https link for the call to action>"
}`

// emailPurposes gives each email type its one-line generation guidance.
var emailPurposes = map[model.EmailType]string{
	model.EmailWelcome:    "Warmly welcome the lead, thank them for reaching out, and set expectations for what happens next.",
	model.EmailValueProp:  "Explain the concrete value of automating their back-office work, tied to their business.",
	model.EmailCaseStudy:  "Share a brief success story from a similar business with measurable results.",
	model.EmailDemoInvite: "Invite them to book a short personalized demo call.",
	model.EmailCheckIn:    "Briefly check in and ask whether they have any questions.",
	model.EmailFinal:      "Send a respectful final touchpoint that leaves the door open for later.",
}

// buildEmailPrompt renders the user prompt for one follow-up item. The lead
// score is optional context.
func buildEmailPrompt(item *model.FollowupItem, sub *model.Submission, score *model.LeadScore) string {
	purpose, ok := emailPurposes[item.EmailType]
	if !ok {
		purpose = "Write a helpful follow-up email."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write follow-up email %d of the lead's sequence.\n", item.SequenceNumber)
	fmt.Fprintf(&b, "Email purpose: %s\n\n", purpose)
	fmt.Fprintf(&b, "Lead name: %s\n", sub.FullName)
	fmt.Fprintf(&b, "Business: %s\n", sub.BusinessName)
	if sub.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", sub.Website)
	}
	if sub.Message != "" {
		fmt.Fprintf(&b, "Their original message: %s\n", sub.Message)
	}
	if score != nil {
		fmt.Fprintf(&b, "Lead category: %s\n", score.Category)
		if len(score.TalkingPoints) > 0 {
			fmt.Fprintf(&b, "Talking points: %s\n", strings.Join(score.TalkingPoints, "; "))
		}
	}
	b.WriteString("\nReturn the JSON object only.")
	return b.String()
}
