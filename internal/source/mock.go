package source

import (
	"context"
	"time"

	"newsletterbot/internal/content"
)

const (
	mockTitle = "Weekly AI Update for South African Professionals"
	mockLink  = "https://example.com/mock-newsletter"
	mockBody  = `Artificial Intelligence continues to transform South African businesses at an unprecedented pace.
This week's highlights include new AI tools for small businesses, ChatGPT integration strategies,
and local companies achieving significant efficiency gains through automation.

Key developments:
- OpenAI released new features that reduce costs by 40%
- Local fintech companies are implementing AI customer service
- Government announces R500M AI development fund
- New study shows 65% productivity increase in AI-adopting SMEs

Practical applications for South African businesses include customer service automation,
content creation tools, and data analysis platforms that provide immediate ROI.`
)

// Mock returns a fixed sample newsletter. The chain uses it as its guaranteed last resort.
type Mock struct {
	norm *content.Normalizer
	now  func() time.Time
}

func NewMock(norm *content.Normalizer) *Mock {
	if norm == nil {
		norm = content.MustNormalizer(content.DefaultDenylist, 0)
	}
	return &Mock{norm: norm, now: time.Now}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Fetch(context.Context) ([]Candidate, error) {
	return []Candidate{{Item: m.Item()}}, nil
}

// Item builds the sample without going through Fetch.
func (m *Mock) Item() content.Item {
	return content.Item{
		ID:        content.NewID(),
		Title:     mockTitle,
		Body:      m.norm.Clean(mockBody),
		Link:      mockLink,
		Published: m.now(),
		Source:    content.SourceFallback,
	}
}
