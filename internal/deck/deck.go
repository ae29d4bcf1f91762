// Package deck ships the default card content as an embedded, read-only
// collection implementing game.ContentProvider. Rooms never mutate the
// provider; they copy its content into their own shuffled decks.
package deck

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cards-server/internal/game"
)

//go:embed cards.json
var cardsJSON []byte

type cardFile struct {
	Prompts   []game.PromptCard `json:"prompts"`
	Responses []string          `json:"responses"`
}

// Static is an immutable in-memory card collection.
type Static struct {
	prompts   []game.PromptCard
	responses []string
}

// Load parses the embedded default card content.
func Load() (*Static, error) {
	var f cardFile
	if err := json.Unmarshal(cardsJSON, &f); err != nil {
		return nil, fmt.Errorf("failed to parse embedded card content: %w", err)
	}
	if len(f.Prompts) == 0 || len(f.Responses) == 0 {
		return nil, fmt.Errorf("embedded card content is incomplete: %d prompts, %d responses", len(f.Prompts), len(f.Responses))
	}
	return &Static{prompts: f.Prompts, responses: f.Responses}, nil
}

// New builds a provider from explicit card lists. Useful for tests and
// custom content packs.
func New(prompts []game.PromptCard, responses []string) *Static {
	return &Static{prompts: prompts, responses: responses}
}

func (s *Static) Prompts() []game.PromptCard {
	return s.prompts
}

func (s *Static) Responses() []string {
	return s.responses
}
