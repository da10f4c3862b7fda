package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Translator translates English text with a Gemini model.
type Translator struct {
	client   *Client
	model    string
	language string
}

func NewTranslator(c *Client, model, language string) *Translator {
	return &Translator{client: c, model: model, language: language}
}

func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := t.client.genai.Models.GenerateContent(ctx, t.model, genai.Text(t.instruction(text)), nil)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	log.Debug().Str("model", t.model).Dur("duration", time.Since(start)).Msg("translation call")

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", errors.New("translate: empty output")
	}
	return out, nil
}

func (t *Translator) instruction(text string) string {
	return fmt.Sprintf("Translate the following English text into natural %s. Output only the translation:\n\n%s", t.language, text)
}
