package coach

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tripcoach/cache"
)

// systemPrompt 按归一化状态组装系统提示词
func systemPrompt(norm cache.Request) string {
	var b strings.Builder
	b.WriteString("You are a travel coach helping a traveler plan a trip.")
	if norm.Topic != "" {
		fmt.Fprintf(&b, " Destination: %s.", norm.Topic)
	}
	if norm.Season != "" {
		fmt.Fprintf(&b, " Season: %s.", norm.Season)
	}
	if norm.Audience != "" {
		fmt.Fprintf(&b, " Traveling as: %s.", norm.Audience)
	}
	if norm.Phase != "" {
		fmt.Fprintf(&b, " Planning phase: %s.", norm.Phase)
	}
	b.WriteString(" Answer concisely and concretely.")
	return b.String()
}

// scopePrompt 按作用域组装预取生成的用户提示词
func scopePrompt(scope string, norm cache.Request, lastAnswer string) string {
	var b strings.Builder
	switch scope {
	case cache.ScopeNextQuestions:
		b.WriteString("Suggest three short follow-up questions the traveler is likely to ask next.")
	case cache.ScopeNextIdeas:
		b.WriteString("Suggest three trip ideas matching the traveler's situation, one line each.")
	case cache.ScopeIdeaCards:
		b.WriteString("Produce three idea cards, each with a title and a two-sentence pitch.")
	case cache.ScopeMiniSummary:
		b.WriteString("Summarize the traveler's current planning state in two sentences.")
	case cache.ScopeStepQuestions:
		b.WriteString("List the key questions a traveler should answer at this planning step, one per line.")
	default:
		b.WriteString(stateDescription(norm))
	}
	if lastAnswer != "" {
		b.WriteString("\n\nThe previous answer was:\n")
		b.WriteString(lastAnswer)
	}
	return b.String()
}

// stateDescription 把状态字段拼成检索查询文本
func stateDescription(norm cache.Request) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{norm.Topic, norm.Season, norm.Audience, norm.Phase} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "trip planning"
	}
	return strings.Join(parts, " ")
}
