package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/faq.txt
	faqRaw string

	//go:embed template/order.txt
	orderRaw string

	//go:embed template/escalation.txt
	escalationRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Router     string
	FAQ        string
	Order      string
	Escalation string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:     strings.TrimSpace(routerRaw),
		FAQ:        strings.TrimSpace(faqRaw),
		Order:      strings.TrimSpace(orderRaw),
		Escalation: strings.TrimSpace(escalationRaw),
	}
}
