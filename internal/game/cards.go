package game

import (
	"math/rand"
)

// PromptCard is a black card: the prompt text plus the number of response
// cards a submission to it must contain.
type PromptCard struct {
	Text   string `json:"text"`
	Blanks int    `json:"numBlanks"`
}

// ContentProvider supplies the full card collections a room draws from.
// Implementations are read-only and shared between rooms; each room copies
// and shuffles the content into its own decks.
type ContentProvider interface {
	Prompts() []PromptCard
	Responses() []string
}

type promptDeck struct {
	provider ContentProvider
	cards    []PromptCard
}

func newPromptDeck(p ContentProvider) *promptDeck {
	d := &promptDeck{provider: p}
	d.reshuffle()
	return d
}

func (d *promptDeck) reshuffle() {
	d.cards = append([]PromptCard(nil), d.provider.Prompts()...)
	rand.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw returns the next prompt, rebuilding the deck from the full provider
// content once exhausted.
func (d *promptDeck) Draw() PromptCard {
	if len(d.cards) == 0 {
		d.reshuffle()
	}
	if len(d.cards) == 0 {
		return PromptCard{}
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card
}

func (d *promptDeck) Count() int {
	return len(d.cards)
}

type responseDeck struct {
	provider ContentProvider
	cards    []string
}

func newResponseDeck(p ContentProvider) *responseDeck {
	d := &responseDeck{provider: p}
	d.reshuffle(nil)
	return d
}

// reshuffle rebuilds the deck from the full provider content, leaving out
// cards currently in play so a refill never hands out a duplicate of a card
// someone already holds. inPlay counts occurrences, which keeps content
// collections with repeated entries honest.
func (d *responseDeck) reshuffle(inPlay map[string]int) {
	remaining := make(map[string]int, len(inPlay))
	for card, n := range inPlay {
		remaining[card] = n
	}

	d.cards = d.cards[:0]
	for _, card := range d.provider.Responses() {
		if remaining[card] > 0 {
			remaining[card]--
			continue
		}
		d.cards = append(d.cards, card)
	}
	rand.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw returns the next response card. When the deck runs dry it reshuffles
// from the provider, excluding in-play cards; ok is false only if nothing is
// left to deal at all.
func (d *responseDeck) Draw(inPlay map[string]int) (card string, ok bool) {
	if len(d.cards) == 0 {
		d.reshuffle(inPlay)
	}
	if len(d.cards) == 0 {
		return "", false
	}
	card = d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card, true
}

func (d *responseDeck) Count() int {
	return len(d.cards)
}
