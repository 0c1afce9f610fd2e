package tool

import "strings"

// Ticket categories accepted at the registry boundary.
const (
	CategoryBilling        = "billing"
	CategoryTechnical      = "technical"
	CategoryAccount        = "account"
	CategoryFeatureRequest = "feature_request"
	CategoryBugReport      = "bug_report"
	CategoryOther          = "other"
)

const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var urgentKeywords = []string{
	"urgent", "critical", "emergency", "down", "outage", "not working at all",
}

var highKeywords = []string{
	"cannot access", "blocked", "important", "deadline", "losing data", "security",
}

var responseTimes = map[string]string{
	PriorityUrgent: "1 hour",
	PriorityHigh:   "4 hours",
	PriorityMedium: "24 hours",
	PriorityLow:    "48 hours",
}

// NormalizeCategory maps free-form category input onto the closed set,
// defaulting to "other".
func NormalizeCategory(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CategoryBilling:
		return CategoryBilling
	case CategoryTechnical:
		return CategoryTechnical
	case CategoryAccount:
		return CategoryAccount
	case CategoryFeatureRequest:
		return CategoryFeatureRequest
	case CategoryBugReport:
		return CategoryBugReport
	default:
		return CategoryOther
	}
}

// ClassifyPriority derives ticket priority from the ticket text and category.
// Keyword severity wins over category; bug reports and billing issues are
// bumped to high when no keyword matched.
func ClassifyPriority(subject, description, category string) string {
	text := strings.ToLower(subject + " " + description)
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return PriorityUrgent
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return PriorityHigh
		}
	}
	if category == CategoryBugReport || category == CategoryBilling {
		return PriorityHigh
	}
	return PriorityMedium
}

// ResponseTime is the committed first-response window for a priority.
func ResponseTime(priority string) string {
	if rt, ok := responseTimes[priority]; ok {
		return rt
	}
	return responseTimes[PriorityMedium]
}
