package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/namikmesic/promptopt/internal/optimizer"
)

// Optimizer calls the managed prompt optimizer.
type Optimizer struct {
	client *Client
}

func NewOptimizer(c *Client) *Optimizer {
	return &Optimizer{client: c}
}

type optimizeRequest struct {
	Content content `json:"content"`
}

type optimizeResponse struct {
	Content content `json:"content"`
}

// parsedResponse is the structured answer carried as JSON text.
type parsedResponse struct {
	OriginalPrompt       string                `json:"original_prompt"`
	SuggestedPrompt      string                `json:"suggested_prompt"`
	ApplicableGuidelines []applicableGuideline `json:"applicable_guidelines"`
}

type applicableGuideline struct {
	ApplicableGuideline  string `json:"applicable_guideline"`
	SuggestedImprovement string `json:"suggested_improvement"`
	TextBeforeChange     string `json:"text_before_change"`
	TextAfterChange      string `json:"text_after_change"`
}

func (o *Optimizer) Optimize(ctx context.Context, prompt string) (*optimizer.Response, error) {
	target, err := o.client.buildURL("v1beta1", o.client.resourcePath()+":optimizePrompt")
	if err != nil {
		return nil, err
	}

	req := optimizeRequest{Content: content{Parts: []part{{Text: prompt}}}}
	var resp optimizeResponse
	if err := o.client.post(ctx, target, req, &resp); err != nil {
		return nil, fmt.Errorf("optimize prompt: %w", err)
	}

	parsed, err := parseOptimizeText(resp.Content.text())
	if err != nil {
		return nil, fmt.Errorf("optimize prompt: %w", err)
	}
	return parsed.toResponse(), nil
}

func parseOptimizeText(text string) (*parsedResponse, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, errors.New("empty optimizer output")
	}

	var parsed parsedResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse optimizer output: %w", err)
	}
	if parsed.SuggestedPrompt == "" {
		return nil, errors.New("optimizer output has no suggested prompt")
	}
	return &parsed, nil
}

func (p *parsedResponse) toResponse() *optimizer.Response {
	guidelines := make([]optimizer.AppliedGuideline, 0, len(p.ApplicableGuidelines))
	for _, g := range p.ApplicableGuidelines {
		guidelines = append(guidelines, optimizer.AppliedGuideline{
			Name:       g.ApplicableGuideline,
			Rationale:  g.SuggestedImprovement,
			TextBefore: g.TextBeforeChange,
			TextAfter:  g.TextAfterChange,
		})
	}
	return &optimizer.Response{
		OriginalPrompt:  p.OriginalPrompt,
		SuggestedPrompt: p.SuggestedPrompt,
		Guidelines:      guidelines,
	}
}

// stripCodeFence removes a surrounding ``` or ```json fence, which the
// model sometimes adds around its JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
