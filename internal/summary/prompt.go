package summary

import "fmt"

const systemPrompt = "You are an AI assistant that summarizes newsletters for South African professionals, " +
	"focusing on actionable AI insights relevant to the local business context."

const promptTemplate = `Please summarize this AI newsletter content for South African professionals and business owners.

FOCUS ON:
- Actionable AI tools and techniques that can be implemented immediately
- Practical applications specifically relevant to South African businesses
- Cost-effective solutions suitable for local market conditions
- ROI potential and implementation complexity
- Local regulatory or market considerations where applicable

NEWSLETTER TITLE: %s

CONTENT: %s

INSTRUCTIONS:
1. Create a concise summary with 4-6 key bullet points
2. Each point should be actionable and specific
3. Include costs, implementation difficulty, or timeframes where mentioned
4. Highlight tools or strategies particularly suitable for SMEs
5. Use South African business terminology where appropriate (e.g., "SME" not "small business")
6. If relevant, mention compatibility with local systems or regulations

FORMAT:
- Start with a one-sentence overview
- Follow with bullet points (use • not numbers)
- End with a practical next step or key takeaway
- Keep total length under 400 words
- Write in a professional but accessible tone

AVOID:
- Generic statements without actionable value
- Technical jargon without explanation
- US-specific references or costs in USD without context
- Overly promotional language
`

func buildPrompt(title, body string) string {
	return fmt.Sprintf(promptTemplate, title, body)
}
