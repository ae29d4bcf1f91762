package server

import (
	"encoding/json"

	"cards-server/internal/game"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
}

// tygo:generate
type InfoMessage struct {
	Message string `json:"message"`
}

// ============================================================================
// PING (ping)
// ============================================================================
// tygo:generate
type PingRequest struct {
	StartTime float64 `json:"startTime"`
	PingID    int     `json:"pingId"`
}

// tygo:generate
type PongResponse struct {
	ServerTime float64 `json:"serverTime"`
	StartTime  float64 `json:"startTime"`
	PingID     int     `json:"pingId"`
}

// ============================================================================
// NAME REGISTRATION (set_username / funny_name_used / reconnect_user)
// ============================================================================
// tygo:generate
type SetUsernameRequest struct {
	Username string `json:"username"`
}

// tygo:generate
type UsernameSetResponse struct {
	Username string `json:"username"`
	HasGame  bool   `json:"hasGame"`
}

// tygo:generate
type NameSuggestionRequest struct {
	Names []string `json:"names"`
}

// tygo:generate
type NameSuggestionResponse struct {
	Name      string `json:"name,omitempty"`
	Available bool   `json:"available"`
}

// tygo:generate
type ReconnectRequest struct {
	Username string `json:"username"`
}

// tygo:generate
type ReconnectedResponse struct {
	Success bool           `json:"success"`
	Reload  bool           `json:"reload,omitempty"`
	Message string         `json:"message,omitempty"`
	Game    *game.Snapshot `json:"game,omitempty"`
}

// ============================================================================
// CREATE GAME (create_game)
// ============================================================================
// tygo:generate
type CreateGameRequest struct {
	Name     string `json:"name"`
	IsPublic *bool  `json:"is_public"`
	Password string `json:"password"`
}

// ============================================================================
// PUBLIC LISTING (get_public_games / game_info_link_join)
// ============================================================================
// tygo:generate
type PublicGamesList struct {
	Games []game.ListingInfo `json:"games"`
}

// tygo:generate
type GameInfoRequest struct {
	GameID string `json:"game_id"`
}

// tygo:generate
type GameInfoResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"has_password"`
	Started     bool   `json:"started"`
}

// ============================================================================
// JOIN / LEAVE / KICK (join_game, leave_game, kick_player)
// ============================================================================
// tygo:generate
type JoinGameRequest struct {
	GameID      string `json:"game_id"`
	Password    string `json:"password"`
	IsSpectator bool   `json:"is_spectator"`
}

// tygo:generate
type KickPlayerRequest struct {
	Username string `json:"username"`
}

// tygo:generate
type PlayerJoinedNotification struct {
	Username    string        `json:"username"`
	IsSpectator bool          `json:"is_spectator"`
	Game        game.Snapshot `json:"game"`
}

// tygo:generate
type PlayerLeftNotification struct {
	Username string        `json:"username"`
	Game     game.Snapshot `json:"game"`
}

// tygo:generate
type KickedNotification struct {
	Message string `json:"message"`
}

// ============================================================================
// ROLES (toggle_role / force_role)
// ============================================================================
// tygo:generate
type ForceRoleRequest struct {
	Username string `json:"username"`
}

// tygo:generate
type RoleChangedNotification struct {
	Username string        `json:"username"`
	Role     string        `json:"role"`
	ForcedBy string        `json:"forced_by,omitempty"`
	Game     game.Snapshot `json:"game"`
}

// ============================================================================
// SETTINGS (update_settings): payload is the raw settings patch,
// validated field by field in game.Settings.ApplyUpdate.
// ============================================================================
type UpdateSettingsRequest = json.RawMessage

// ============================================================================
// GAMEPLAY (submit_answers, vote_winner)
// ============================================================================
// tygo:generate
type SubmitAnswersRequest struct {
	AnswerIndices []int `json:"answer_indices"`
}

// tygo:generate
type PlayerSubmittedNotification struct {
	Username       string `json:"username"`
	SubmittedCount int    `json:"submitted_count"`
	TotalPlayers   int    `json:"total_players"` // non-judge active players
}

// tygo:generate
type VoteWinnerRequest struct {
	WinnerIndex *int `json:"winner_index"`
}

// ============================================================================
// PAUSE / RESUME / TIMER
// ============================================================================
// tygo:generate
type PauseStateNotification struct {
	TimeLeft int `json:"time_left"`
}

// tygo:generate
type TimerSync struct {
	TimeLeft int `json:"time_left"`
	MaxTime  int `json:"max_time"`
}
