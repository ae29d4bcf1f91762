package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Settings holds every per-room tunable as an explicit typed field. Updates
// arrive as a JSON patch; unknown keys are rejected rather than merged.
type Settings struct {
	Name             string `json:"gameName"`
	Public           bool   `json:"publicVisible"`
	PublicDuringGame bool   `json:"publicVisibleDuringGame"`
	Password         string `json:"password"`
	HandSize         int    `json:"maxWhiteCardsPerPlayer"`
	PointsToWin      int    `json:"maxPointsToWin"`
	MaxRounds        int    `json:"maxRounds"`
	AnswerSeconds    int    `json:"timeToChooseWhiteCards"`
	JudgeSeconds     int    `json:"timeToChooseWinner"`
	ResultSeconds    int    `json:"timeAfterWinnerChosen"`
	ConfirmSeconds   int    `json:"timeToConfirmWinner"`
	MaxPlayers       int    `json:"maxPlayers"`
}

// DefaultSettings returns the configuration a freshly created room starts with.
func DefaultSettings(ownerName string) Settings {
	return Settings{
		Name:             ownerName + "'s Game",
		Public:           true,
		PublicDuringGame: false,
		Password:         "",
		HandSize:         7,
		PointsToWin:      5,
		MaxRounds:        25,
		AnswerSeconds:    60,
		JudgeSeconds:     60,
		ResultSeconds:    15,
		ConfirmSeconds:   10,
		MaxPlayers:       100,
	}
}

// settingsPatch mirrors Settings with pointer fields so a partial update can
// distinguish "absent" from zero values.
type settingsPatch struct {
	Name             *string `json:"gameName"`
	Public           *bool   `json:"publicVisible"`
	PublicDuringGame *bool   `json:"publicVisibleDuringGame"`
	Password         *string `json:"password"`
	HandSize         *int    `json:"maxWhiteCardsPerPlayer"`
	PointsToWin      *int    `json:"maxPointsToWin"`
	MaxRounds        *int    `json:"maxRounds"`
	AnswerSeconds    *int    `json:"timeToChooseWhiteCards"`
	JudgeSeconds     *int    `json:"timeToChooseWinner"`
	ResultSeconds    *int    `json:"timeAfterWinnerChosen"`
	ConfirmSeconds   *int    `json:"timeToConfirmWinner"`
	MaxPlayers       *int    `json:"maxPlayers"`
}

// ApplyUpdate merges a JSON patch into the settings. The whole patch is
// validated against the resulting configuration before anything is applied,
// so a rejected update leaves the settings untouched.
func (s *Settings) ApplyUpdate(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var p settingsPatch
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("VALIDATION: invalid settings payload: %w", err)
	}

	updated := *s
	if p.Name != nil {
		updated.Name = strings.TrimSpace(*p.Name)
	}
	if p.Public != nil {
		updated.Public = *p.Public
	}
	if p.PublicDuringGame != nil {
		updated.PublicDuringGame = *p.PublicDuringGame
	}
	if p.Password != nil {
		updated.Password = strings.TrimSpace(*p.Password)
	}
	if p.HandSize != nil {
		updated.HandSize = *p.HandSize
	}
	if p.PointsToWin != nil {
		updated.PointsToWin = *p.PointsToWin
	}
	if p.MaxRounds != nil {
		updated.MaxRounds = *p.MaxRounds
	}
	if p.AnswerSeconds != nil {
		updated.AnswerSeconds = *p.AnswerSeconds
	}
	if p.JudgeSeconds != nil {
		updated.JudgeSeconds = *p.JudgeSeconds
	}
	if p.ResultSeconds != nil {
		updated.ResultSeconds = *p.ResultSeconds
	}
	if p.ConfirmSeconds != nil {
		updated.ConfirmSeconds = *p.ConfirmSeconds
	}
	if p.MaxPlayers != nil {
		updated.MaxPlayers = *p.MaxPlayers
	}

	if err := updated.validate(); err != nil {
		return err
	}

	*s = updated
	return nil
}

func (s Settings) validate() error {
	if s.Name == "" {
		return errors.New("VALIDATION: game name cannot be empty")
	}
	if utf8.RuneCountInString(s.Name) > 50 {
		return errors.New("VALIDATION: game name too long (max 50 characters)")
	}
	if s.HandSize < 3 || s.HandSize > 20 {
		return errors.New("VALIDATION: hand size must be between 3 and 20")
	}
	if s.PointsToWin < 1 || s.PointsToWin > 50 {
		return errors.New("VALIDATION: points to win must be between 1 and 50")
	}
	if s.MaxRounds < 1 || s.MaxRounds > 200 {
		return errors.New("VALIDATION: max rounds must be between 1 and 200")
	}
	if s.AnswerSeconds < 5 || s.AnswerSeconds > 600 {
		return errors.New("VALIDATION: answer time must be between 5 and 600 seconds")
	}
	if s.JudgeSeconds < 5 || s.JudgeSeconds > 600 {
		return errors.New("VALIDATION: judging time must be between 5 and 600 seconds")
	}
	if s.ResultSeconds < 5 || s.ResultSeconds > 600 {
		return errors.New("VALIDATION: result time must be between 5 and 600 seconds")
	}
	if s.ConfirmSeconds < 0 || s.ConfirmSeconds > 60 {
		return errors.New("VALIDATION: confirm window must be between 0 and 60 seconds")
	}
	if s.MaxPlayers < 3 || s.MaxPlayers > 100 {
		return errors.New("VALIDATION: max players must be between 3 and 100")
	}
	return nil
}
