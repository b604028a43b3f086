package summary

import (
	"strings"
	"unicode/utf8"

	"newsletterbot/internal/content"
)

const (
	fallbackTitle     = "AI Newsletter Update"
	maxKeySentences   = 3
	scanSentences     = 10
	minSentenceLength = 20

	extractiveTakeaway = "💡 **Key Takeaway:** Evaluate these AI developments for potential application in your South African business context."
	templateBody       = `• AI technologies continue to evolve rapidly with new tools and applications
• South African businesses can benefit from adopting AI solutions for efficiency
• Key areas include automation, customer service, and data analysis
• Consider starting with simple, cost-effective AI tools for immediate impact

💡 **Key Takeaway:** Explore AI tools that match your business size and budget for quick wins.`
)

var fallbackKeywords = []string{"ai", "artificial intelligence", "business", "tool", "cost", "efficiency", "automation", "productivity"}

// extractive builds a bullet summary from keyword sentences of body, or the generic template.
func extractive(body string) (string, content.Origin) {
	sentences := strings.Split(body, ".")
	if len(sentences) > scanSentences {
		sentences = sentences[:scanSentences]
	}
	var keep []string
	for _, s := range sentences {
		s = strings.Join(strings.Fields(s), " ")
		if utf8.RuneCountInString(s) <= minSentenceLength || !hasKeyword(s) {
			continue
		}
		keep = append(keep, "• "+s+".")
		if len(keep) == maxKeySentences {
			break
		}
	}
	if len(keep) == 0 {
		return templateBody, content.OriginTemplate
	}
	return strings.Join(keep, "\n") + "\n\n" + extractiveTakeaway, content.OriginExtractive
}

func hasKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, k := range fallbackKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
