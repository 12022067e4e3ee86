package summarize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Output schema ceilings. Violating any of them makes the model output
// unusable for delivery, so validation is strict: no silent truncation.
const (
	MaxHeadlineChars = 140
	MinBullets       = 2
	MaxBullets       = 6
	MaxBulletChars   = 280
)

// Draft is the schema the model must produce.
type Draft struct {
	Headline string   `json:"headline"`
	Bullets  []string `json:"bullets"`
}

// ParseDraft extracts and validates a Draft from raw model output. Models
// routinely wrap JSON in code fences or prose, so parsing tolerates
// surrounding noise: everything outside the outermost braces is discarded.
// Validation is not tolerant; any schema violation is an error.
func ParseDraft(raw string) (*Draft, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var draft Draft
	if err := json.Unmarshal([]byte(raw[start:end+1]), &draft); err != nil {
		return nil, fmt.Errorf("parsing model output: %w", err)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Validate checks the draft against the output schema.
func (d *Draft) Validate() error {
	headline := strings.TrimSpace(d.Headline)
	if headline == "" {
		return fmt.Errorf("headline must not be empty")
	}
	if len([]rune(headline)) > MaxHeadlineChars {
		return fmt.Errorf("headline exceeds %d characters", MaxHeadlineChars)
	}

	if len(d.Bullets) < MinBullets || len(d.Bullets) > MaxBullets {
		return fmt.Errorf("bullets must contain %d-%d entries, got %d", MinBullets, MaxBullets, len(d.Bullets))
	}
	for i, bullet := range d.Bullets {
		if strings.TrimSpace(bullet) == "" {
			return fmt.Errorf("bullet %d must not be empty", i+1)
		}
		if len([]rune(bullet)) > MaxBulletChars {
			return fmt.Errorf("bullet %d exceeds %d characters", i+1, MaxBulletChars)
		}
	}
	return nil
}
