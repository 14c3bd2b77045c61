// Package capability classifies a user message into one of the fixed
// assistant capabilities. Detection is an ordered rule list over the
// lowercased message, so the same input always maps to the same
// capability.
package capability

import "strings"

type Capability string

const (
	KeywordInsights  Capability = "keyword-insights"
	MarketBrief      Capability = "market-brief"
	CompetitorIntel  Capability = "competitor-intel"
	AlertExplanation Capability = "alert-explanation"
	Recommendations  Capability = "recommendations"
	ComplianceCheck  Capability = "compliance-check"
	SupportDocs      Capability = "support-docs"
	OpenEnded        Capability = "open-ended"
)

var all = []Capability{
	KeywordInsights,
	MarketBrief,
	CompetitorIntel,
	AlertExplanation,
	Recommendations,
	ComplianceCheck,
	SupportDocs,
	OpenEnded,
}

// Valid reports whether s names a known capability.
func Valid(s string) bool {
	for _, c := range all {
		if string(c) == s {
			return true
		}
	}
	return false
}

type rule struct {
	capability Capability
	phrases    []string
}

// Rule order matters: the first match wins, so the more specific
// intents sit above the broad ones.
var rules = []rule{
	{AlertExplanation, []string{"alert", "notification", "why was i notified", "warning"}},
	{ComplianceCheck, []string{"compliance", "policy", "prohibited", "restricted", "suspension", "violat"}},
	{CompetitorIntel, []string{"competitor", "competition for", "rival", "other sellers", "compare my listing"}},
	{SupportDocs, []string{"how do i", "how to", "where can i", "guide", "documentation", "tutorial"}},
	{Recommendations, []string{"recommend", "suggest", "what should i", "improve my", "optimize"}},
	{MarketBrief, []string{"market", "trend", "season", "demand", "overview"}},
	{KeywordInsights, []string{"keyword", "search term", "search volume", "rank for", "ads for"}},
}

// Detect maps a message to a capability. Unknown intents fall back to
// open-ended.
func Detect(message string) Capability {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(lower, phrase) {
				return r.capability
			}
		}
	}
	return OpenEnded
}

// Resolve prefers an explicit capability supplied by the caller over
// detection.
func Resolve(explicit, message string) Capability {
	if explicit != "" && Valid(explicit) {
		return Capability(explicit)
	}
	return Detect(message)
}
