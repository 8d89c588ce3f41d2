package ai

import (
	"context"
	"strings"
	"time"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
)

// DemoProvider answers from the offline catalogue. Delay simulates
// network latency so the loading state is visible in a terminal.
type DemoProvider struct {
	Catalogue *catalogue.Catalogue
	Delay     time.Duration
}

func NewDemoProvider(c *catalogue.Catalogue) *DemoProvider {
	if c == nil {
		c = catalogue.Default()
	}
	return &DemoProvider{Catalogue: c}
}

func (p *DemoProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Catalogue.Answer(strings.TrimSpace(req.Message), req.Language), nil
}
