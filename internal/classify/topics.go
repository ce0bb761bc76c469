package classify

import (
	"sort"
	"strings"
)

// Topic buckets used by correlation. A bucket matches when any of its
// keywords occurs in the lowercased text.
var topicKeywords = map[string][]string{
	"disability_benefits": {"disability benefit", "disability compensation", "disability claim", "disability rating", "disability benefits"},
	"claims_backlog":      {"backlog", "claims processing", "processing delays", "pending claims"},
	"community_care":      {"community care", "mission act", "choice program", "non-va care"},
	"mental_health":       {"mental health", "ptsd", "behavioral health", "psychiatric"},
	"suicide_prevention":  {"suicide", "crisis line", "veterans crisis"},
	"toxic_exposure":      {"toxic exposure", "burn pit", "pact act", "agent orange", "camp lejeune"},
	"ehr_modernization":   {"electronic health record", "ehr modernization", "cerner", "oracle health"},
	"wait_times":          {"wait time", "wait list", "waitlist", "appointment delay", "access to care"},
	"homelessness":        {"homeless", "housing voucher", "hud-vash"},
	"contracting":         {"contract", "procurement", "vendor", "acquisition"},
	"whistleblower":       {"whistleblower", "retaliation"},
	"workforce_shortage":  {"staffing shortage", "vacancies", "workforce shortage", "hiring freeze", "understaffed"},
	"privacy_breach":      {"data breach", "privacy", "personal information", "exposed records"},
	"caregiver_support":   {"caregiver"},
	"education_benefits":  {"gi bill", "education benefit", "vocational rehabilitation", "vr&e"},
	"budget_funding":      {"budget", "appropriation", "funding shortfall", "continuing resolution"},
}

// Topics returns the sorted buckets text falls into
func Topics(text string) []string {
	text = strings.ToLower(text)
	var out []string
	for topic, keywords := range topicKeywords {
		for _, k := range keywords {
			if strings.Contains(text, k) {
				out = append(out, topic)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// TopicNames lists every bucket in lexical order
func TopicNames() []string {
	names := make([]string, 0, len(topicKeywords))
	for k := range topicKeywords {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
