package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Phase is the room's position in the round state machine.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseChoosing  Phase = "choosing_cards"
	PhaseJudging   Phase = "choosing_winner"
	PhaseCountdown Phase = "countdown_next_round"
	PhaseEnded     Phase = "game_ended"
)

// ConnStatus is the room's shadow copy of a member's connection state,
// mirrored in by the gateway so gameplay logic can tell connected players
// from ones sitting in the reconnect grace window.
type ConnStatus string

const (
	StatusConnected     ConnStatus = "connected"
	StatusDisconnecting ConnStatus = "disconnecting"
	StatusDisconnected  ConnStatus = "disconnected"
)

// NoTimer is the timer sentinel for phases without automatic advancement.
const NoTimer = -1

// HistoryEntry is an immutable record of one completed round.
type HistoryEntry struct {
	Round        int                 `json:"round"`
	Prompt       PromptCard          `json:"blackCard"`
	Submissions  map[string][]string `json:"submittedCards"`
	Winner       string              `json:"winner"`
	WinningCards []string            `json:"winningCards"`
	Judge        string              `json:"czar,omitempty"` // empty when the winner was auto-chosen
}

// ListingInfo is the public directory entry for a room.
type ListingInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Players     int    `json:"players"`
	HasPassword bool   `json:"has_password"`
	Started     bool   `json:"started"`
}

// Room owns one game's full state machine. All exported methods are safe for
// concurrent use; every mutation happens atomically under the room lock, so
// a tick-driven expiry and a racing player intent serialize and each phase
// transition is applied exactly once.
type Room struct {
	mu sync.Mutex

	id       string
	settings Settings
	provider ContentProvider

	owner         string
	activePlayers []string
	spectators    []string
	status        map[string]ConnStatus

	prompts   *promptDeck
	responses *responseDeck

	phase        Phase
	round        int
	hands        map[string][]string
	scores       map[string]int
	prompt       PromptCard
	submissions  map[string][]string
	displayOrder []string // slot index -> submitting player; server-only
	judgeIndex   int
	judge        string
	winner       string
	winningCards []string
	history      []HistoryEntry

	tentativeWinner string
	confirmGen      int

	timerTotal int
	timerLeft  int
	paused     bool

	// scheduleConfirm defers the winner-confirmation callback; replaced in tests.
	scheduleConfirm func(seconds int, fn func())
	// onDeferredChange is invoked (outside the lock) after a deferred callback
	// mutates the room, so the gateway can broadcast the new state.
	onDeferredChange func()
}

// NewRoom creates a room in the lobby phase with the owner as its first
// active player.
func NewRoom(id, ownerName string, provider ContentProvider, settings Settings) *Room {
	r := &Room{
		id:            id,
		settings:      settings,
		provider:      provider,
		owner:         ownerName,
		activePlayers: []string{ownerName},
		status:        map[string]ConnStatus{ownerName: StatusConnected},
		hands:         make(map[string][]string),
		scores:        make(map[string]int),
		submissions:   make(map[string][]string),
		phase:         PhaseLobby,
		timerTotal:    NoTimer,
		timerLeft:     NoTimer,
	}
	r.scheduleConfirm = func(seconds int, fn func()) {
		time.AfterFunc(time.Duration(seconds)*time.Second, fn)
	}
	return r
}

// SetDeferredChangeFunc registers the broadcast hook for deferred transitions.
func (r *Room) SetDeferredChangeFunc(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeferredChange = fn
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

func (r *Room) CurrentPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Started reports whether the room has left the lobby (game_ended counts as
// started; it takes an explicit reset to return to the lobby).
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase != PhaseLobby
}

func (r *Room) Judge() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.judge
}

func (r *Room) CheckPassword(password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.Password == "" || r.settings.Password == password
}

func (r *Room) SettingsCopy() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings applies a JSON patch to the room settings. Only allowed in
// the lobby; mid-game settings changes would invalidate running timers and
// dealt hands.
func (r *Room) UpdateSettings(raw json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseLobby {
		return errors.New("INVALID_PHASE: settings can only be changed in the lobby")
	}
	return r.settings.ApplyUpdate(raw)
}

// MemberNames returns active players and spectators, in join order.
func (r *Room) MemberNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.activePlayers)+len(r.spectators))
	names = append(names, r.activePlayers...)
	names = append(names, r.spectators...)
	return names
}

func (r *Room) IsMember(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberRoleLocked(name) != ""
}

func (r *Room) ActivePlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activePlayers)
}

// Listing returns the public directory entry and whether the room is visible
// in the public list right now.
func (r *Room) Listing() (ListingInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	started := r.phase != PhaseLobby
	info := ListingInfo{
		ID:          r.id,
		Name:        r.settings.Name,
		Players:     len(r.activePlayers),
		HasPassword: r.settings.Password != "",
		Started:     started,
	}
	visible := (!started && r.settings.Public) || (started && r.settings.PublicDuringGame)
	return info, visible
}

// TimerState returns the remaining and total seconds of the current timer.
func (r *Room) TimerState() (left, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timerLeft, r.timerTotal
}

// ============================================================================
// Membership
// ============================================================================

// AddPlayer appends a member to the requested list. A player joining a game
// already in progress starts with an empty hand and zero score; the next
// round's refill deals them in, and they cannot be the current judge.
func (r *Room) AddPlayer(name string, asSpectator bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.New("VALIDATION: player name cannot be empty")
	}
	if r.memberRoleLocked(name) != "" {
		return errors.New("CONFLICT: already in this game")
	}
	if !asSpectator && len(r.activePlayers) >= r.settings.MaxPlayers {
		return fmt.Errorf("ROOM_FULL: game is full (%d/%d players)", len(r.activePlayers), r.settings.MaxPlayers)
	}

	if asSpectator {
		r.spectators = append(r.spectators, name)
	} else {
		r.activePlayers = append(r.activePlayers, name)
		if r.phase != PhaseLobby {
			r.scores[name] = 0
		}
	}
	r.status[name] = StatusConnected
	return nil
}

// RemovePlayer removes a member from whichever list holds them, cascading
// score, hand and submission cleanup, owner succession and the minimum-player
// check. empty is true when the room has no members left and should be
// deleted by the directory.
func (r *Room) RemovePlayer(name string) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role := r.memberRoleLocked(name)
	if role == "" {
		return false, len(r.activePlayers)+len(r.spectators) == 0
	}

	delete(r.status, name)

	if role == "spectator" {
		r.spectators = removeName(r.spectators, name)
	} else {
		idx := indexOf(r.activePlayers, name)
		r.activePlayers = removeName(r.activePlayers, name)
		delete(r.scores, name)
		delete(r.hands, name)
		delete(r.submissions, name)

		if r.phase != PhaseLobby {
			// Keep rotation order over the survivors: shift the judge index
			// down when the removed player sat at or before it. The judge
			// name is only recomputed at the next round start.
			if idx <= r.judgeIndex {
				r.judgeIndex--
			}
		}

		if r.phase == PhaseJudging {
			r.displayOrder = removeName(r.displayOrder, name)
			if r.tentativeWinner == name {
				r.tentativeWinner = ""
				r.confirmGen++
			}
		}
		if r.phase == PhaseChoosing {
			// The departed player may have been the last one holding up the
			// round.
			r.maybeCloseSubmissionsLocked()
		}
	}

	if r.owner == name {
		r.owner = r.successorLocked()
	}

	if len(r.activePlayers) < 3 && r.phase != PhaseLobby && r.phase != PhaseEnded {
		r.endGameLocked()
	}

	return true, len(r.activePlayers)+len(r.spectators) == 0
}

// successorLocked picks the next owner: first connected active player, then
// first connected spectator, then any remaining member.
func (r *Room) successorLocked() string {
	for _, p := range r.activePlayers {
		if r.status[p] == StatusConnected {
			return p
		}
	}
	for _, s := range r.spectators {
		if r.status[s] == StatusConnected {
			return s
		}
	}
	if len(r.activePlayers) > 0 {
		return r.activePlayers[0]
	}
	if len(r.spectators) > 0 {
		return r.spectators[0]
	}
	return ""
}

// ToggleRole swaps a member between the active-player and spectator lists.
func (r *Room) ToggleRole(name string) (newRole string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return "", errors.New("INVALID_PHASE: roles cannot change while a game is running")
	}

	switch r.memberRoleLocked(name) {
	case "player":
		r.activePlayers = removeName(r.activePlayers, name)
		r.spectators = append(r.spectators, name)
		return "spectator", nil
	case "spectator":
		if len(r.activePlayers) >= r.settings.MaxPlayers {
			return "", fmt.Errorf("ROOM_FULL: game is full (%d/%d players)", len(r.activePlayers), r.settings.MaxPlayers)
		}
		r.spectators = removeName(r.spectators, name)
		r.activePlayers = append(r.activePlayers, name)
		return "player", nil
	default:
		return "", errors.New("NOT_FOUND: no such member")
	}
}

// MarkConnectionStatus updates the room's shadow copy of a member's
// connection state.
func (r *Room) MarkConnectionStatus(name string, status ConnStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.status[name]; !ok {
		return false
	}
	r.status[name] = status
	return true
}

// ============================================================================
// Round state machine
// ============================================================================

// StartGame moves the room from the lobby into the first round.
func (r *Room) StartGame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return errors.New("INVALID_PHASE: game already started")
	}
	if len(r.activePlayers) < 3 {
		return errors.New("VALIDATION: at least 3 active players required (spectators don't count)")
	}

	r.round = 0
	r.history = nil
	r.hands = make(map[string][]string)
	r.submissions = make(map[string][]string)
	r.displayOrder = nil
	r.winner = ""
	r.winningCards = nil
	r.tentativeWinner = ""
	r.scores = make(map[string]int, len(r.activePlayers))
	for _, p := range r.activePlayers {
		r.scores[p] = 0
	}

	r.prompts = newPromptDeck(r.provider)
	r.responses = newResponseDeck(r.provider)

	r.judgeIndex = rand.Intn(len(r.activePlayers))
	r.judge = r.activePlayers[r.judgeIndex]
	r.prompt = r.prompts.Draw()
	r.fillHandsLocked()

	r.phase = PhaseChoosing
	r.paused = false
	r.setTimerLocked(r.settings.AnswerSeconds)
	return nil
}

// SubmitResponse records a player's chosen cards by value and removes them
// from the hand. Once every connected non-judge player is in, disconnected
// stragglers are auto-submitted; once every eligible player is in, the phase
// advances to judging.
func (r *Room) SubmitResponse(player string, indices []int) (submitted, expected int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseChoosing {
		return 0, 0, errors.New("INVALID_PHASE: not accepting submissions right now")
	}
	if indexOf(r.activePlayers, player) < 0 {
		return 0, 0, errors.New("NOT_AUTHORIZED: only active players can submit")
	}
	if player == r.judge {
		return 0, 0, errors.New("NOT_AUTHORIZED: the card czar does not submit")
	}
	if _, ok := r.submissions[player]; ok {
		return 0, 0, errors.New("CONFLICT: you already submitted this round")
	}
	if len(indices) != r.prompt.Blanks {
		return 0, 0, fmt.Errorf("VALIDATION: choose exactly %d card(s)", r.prompt.Blanks)
	}

	hand := r.hands[player]
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(hand) {
			return 0, 0, errors.New("VALIDATION: card index out of range")
		}
		if seen[idx] {
			return 0, 0, errors.New("VALIDATION: duplicate card index")
		}
		seen[idx] = true
	}

	r.takeFromHandLocked(player, indices)

	if r.allConnectedSubmittedLocked() {
		r.autoSubmitLocked()
	}
	r.maybeCloseSubmissionsLocked()

	return len(r.submissions), len(r.activePlayers) - 1, nil
}

// takeFromHandLocked moves the cards at the given hand indices into the
// submissions map. Indices must be pre-validated.
func (r *Room) takeFromHandLocked(player string, indices []int) {
	hand := r.hands[player]
	cards := make([]string, 0, len(indices))
	for _, idx := range indices {
		cards = append(cards, hand[idx])
	}

	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, idx := range sorted {
		hand = append(hand[:idx], hand[idx+1:]...)
	}

	r.hands[player] = hand
	r.submissions[player] = cards
}

// autoSubmitLocked submits a uniformly random legal subset of the hand for
// every non-judge active player who hasn't submitted. Players without enough
// cards (mid-game joiners waiting for the next deal) are skipped.
func (r *Room) autoSubmitLocked() {
	for _, p := range r.activePlayers {
		if p == r.judge {
			continue
		}
		if _, ok := r.submissions[p]; ok {
			continue
		}
		hand := r.hands[p]
		if len(hand) < r.prompt.Blanks || r.prompt.Blanks == 0 {
			continue
		}
		indices := rand.Perm(len(hand))[:r.prompt.Blanks]
		r.takeFromHandLocked(p, indices)
	}
}

// allConnectedSubmittedLocked reports whether every connected non-judge
// active player has a submission (and at least one exists).
func (r *Room) allConnectedSubmittedLocked() bool {
	connected := 0
	for _, p := range r.activePlayers {
		if p == r.judge || r.status[p] != StatusConnected {
			continue
		}
		connected++
		if _, ok := r.submissions[p]; !ok {
			return false
		}
	}
	return connected > 0
}

// maybeCloseSubmissionsLocked advances to the judging phase once every
// non-judge active player has either submitted or cannot (too few cards).
// The randomized slot->player display order is generated here and never
// leaves the server.
func (r *Room) maybeCloseSubmissionsLocked() {
	if r.phase != PhaseChoosing {
		return
	}
	for _, p := range r.activePlayers {
		if p == r.judge {
			continue
		}
		if _, ok := r.submissions[p]; ok {
			continue
		}
		if len(r.hands[p]) >= r.prompt.Blanks && r.prompt.Blanks > 0 {
			return // still waiting on this player
		}
	}
	if len(r.submissions) == 0 {
		return
	}

	order := make([]string, 0, len(r.submissions))
	for p := range r.submissions {
		order = append(order, p)
	}
	sort.Strings(order) // deterministic base before shuffling
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	r.displayOrder = order

	r.phase = PhaseJudging
	r.setTimerLocked(r.settings.JudgeSeconds)
}

// VoteWinner records the judge's pick for the submission at the given display
// slot. The pick stays tentative (visible only to the judge) for the
// configured confirmation window and can be replaced by a re-vote; the
// deferred finalize callback re-checks phase and pick before acting.
func (r *Room) VoteWinner(voter string, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseJudging {
		return errors.New("INVALID_PHASE: there is nothing to vote on right now")
	}
	if voter != r.judge {
		return errors.New("NOT_AUTHORIZED: only the card czar chooses the winner")
	}
	if slot < 0 || slot >= len(r.displayOrder) {
		return errors.New("VALIDATION: winner index out of range")
	}
	target := r.displayOrder[slot]
	if _, ok := r.submissions[target]; !ok {
		return errors.New("NOT_FOUND: no submission at that position")
	}

	if r.settings.ConfirmSeconds <= 0 {
		r.finalizeWinnerLocked(target, voter)
		return nil
	}

	r.tentativeWinner = target
	r.confirmGen++
	gen := r.confirmGen
	r.scheduleConfirm(r.settings.ConfirmSeconds, func() {
		r.confirmWinner(gen)
	})
	return nil
}

// confirmWinner is the deferred confirmation callback. The generation check
// makes a superseded callback (re-vote, phase change, player removal) observe
// stale state and no-op.
func (r *Room) confirmWinner(gen int) {
	var changed bool
	r.mu.Lock()
	if r.phase == PhaseJudging && gen == r.confirmGen && r.tentativeWinner != "" {
		if _, ok := r.submissions[r.tentativeWinner]; ok {
			r.finalizeWinnerLocked(r.tentativeWinner, r.judge)
			changed = true
		}
	}
	notify := r.onDeferredChange
	r.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}

// finalizeWinnerLocked applies a winner: score, immutable history entry,
// transition to the between-rounds countdown. judgeName is empty when the
// winner was auto-chosen on timeout.
func (r *Room) finalizeWinnerLocked(winnerName, judgeName string) {
	winCards := append([]string(nil), r.submissions[winnerName]...)

	subsCopy := make(map[string][]string, len(r.submissions))
	for p, cards := range r.submissions {
		subsCopy[p] = append([]string(nil), cards...)
	}

	r.winner = winnerName
	r.winningCards = winCards
	r.scores[winnerName]++
	r.history = append(r.history, HistoryEntry{
		Round:        r.round,
		Prompt:       r.prompt,
		Submissions:  subsCopy,
		Winner:       winnerName,
		WinningCards: winCards,
		Judge:        judgeName,
	})

	r.submissions = make(map[string][]string)
	r.displayOrder = nil
	r.tentativeWinner = ""
	r.confirmGen++

	r.phase = PhaseCountdown
	r.setTimerLocked(r.settings.ResultSeconds)
}

// advanceRoundLocked starts the next round or ends the game. Termination
// conditions are checked in order: round cap, winning score, player minimum.
func (r *Room) advanceRoundLocked() {
	if r.phase != PhaseCountdown {
		return
	}

	if r.round+1 >= r.settings.MaxRounds {
		r.endGameLocked()
		return
	}
	for _, score := range r.scores {
		if score >= r.settings.PointsToWin {
			r.endGameLocked()
			return
		}
	}
	if len(r.activePlayers) < 3 {
		r.endGameLocked()
		return
	}

	r.round++
	r.submissions = make(map[string][]string)
	r.displayOrder = nil
	r.winner = ""
	r.winningCards = nil

	// Judge rotation is recomputed against the current membership, not the
	// membership at round start.
	n := len(r.activePlayers)
	r.judgeIndex = ((r.judgeIndex+1)%n + n) % n
	r.judge = r.activePlayers[r.judgeIndex]

	r.prompt = r.prompts.Draw()
	r.fillHandsLocked()

	r.phase = PhaseChoosing
	r.setTimerLocked(r.settings.AnswerSeconds)
}

// fillHandsLocked refills every active player's hand up to the configured
// size, bounded by deck availability.
func (r *Room) fillHandsLocked() {
	inPlay := r.inPlayLocked()
	for _, p := range r.activePlayers {
		for len(r.hands[p]) < r.settings.HandSize {
			card, ok := r.responses.Draw(inPlay)
			if !ok {
				return
			}
			r.hands[p] = append(r.hands[p], card)
			inPlay[card]++
		}
	}
}

func (r *Room) inPlayLocked() map[string]int {
	counts := make(map[string]int)
	for _, hand := range r.hands {
		for _, c := range hand {
			counts[c]++
		}
	}
	for _, cards := range r.submissions {
		for _, c := range cards {
			counts[c]++
		}
	}
	return counts
}

func (r *Room) endGameLocked() {
	r.phase = PhaseEnded
	r.timerTotal = NoTimer
	r.timerLeft = NoTimer
	r.tentativeWinner = ""
	r.confirmGen++
}

// ResetToLobby clears all round state and returns the room to the lobby.
// Valid from game_ended or as a mid-game abort.
func (r *Room) ResetToLobby() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseLobby {
		return errors.New("INVALID_PHASE: already in the lobby")
	}

	r.phase = PhaseLobby
	r.round = 0
	r.hands = make(map[string][]string)
	r.scores = make(map[string]int)
	r.submissions = make(map[string][]string)
	r.displayOrder = nil
	r.history = nil
	r.prompt = PromptCard{}
	r.judge = ""
	r.judgeIndex = 0
	r.winner = ""
	r.winningCards = nil
	r.tentativeWinner = ""
	r.confirmGen++
	r.paused = false
	r.timerTotal = NoTimer
	r.timerLeft = NoTimer
	return nil
}

// Pause freezes the round timer. Tick keeps being called but no-ops.
func (r *Room) Pause() (timeLeft int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseLobby || r.phase == PhaseEnded {
		return 0, errors.New("INVALID_PHASE: no running game to pause")
	}
	if r.paused {
		return 0, errors.New("CONFLICT: game is already paused")
	}
	r.paused = true
	return r.timerLeft, nil
}

// Resume continues the timer from exactly where it stopped.
func (r *Room) Resume() (timeLeft int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseLobby || r.phase == PhaseEnded {
		return 0, errors.New("INVALID_PHASE: no running game to resume")
	}
	if !r.paused {
		return 0, errors.New("CONFLICT: game is not paused")
	}
	r.paused = false
	return r.timerLeft, nil
}

func (r *Room) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Tick advances the room timer by one second and, on expiry, runs the
// current phase's expiry action. Called once per second by the scheduler;
// returns true when the phase changed so the caller can broadcast a full
// snapshot.
func (r *Room) Tick() (phaseChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseLobby || r.phase == PhaseEnded || r.paused {
		return false
	}
	if r.timerLeft < 0 {
		return false
	}

	r.timerLeft--
	if r.timerLeft > 0 {
		return false
	}

	before := r.phase
	switch r.phase {
	case PhaseChoosing:
		r.autoSubmitLocked()
		r.maybeCloseSubmissionsLocked()
		if r.phase == PhaseChoosing {
			// Nobody could submit (e.g. everyone card-less); rearm rather
			// than spin at zero.
			r.setTimerLocked(r.settings.AnswerSeconds)
		}
	case PhaseJudging:
		if len(r.displayOrder) > 0 {
			winnerName := r.displayOrder[rand.Intn(len(r.displayOrder))]
			r.finalizeWinnerLocked(winnerName, "")
		} else {
			// All submitters left mid-judging; skip straight to the
			// between-rounds countdown.
			r.phase = PhaseCountdown
			r.setTimerLocked(r.settings.ResultSeconds)
		}
	case PhaseCountdown:
		r.advanceRoundLocked()
	}
	return r.phase != before || r.timerLeft == r.timerTotal
}

func (r *Room) setTimerLocked(total int) {
	r.timerTotal = total
	r.timerLeft = total
}

// ============================================================================
// Snapshots
// ============================================================================

// Snapshot is a personalized, client-safe view of the room: it carries only
// the addressed player's hand, and during judging exposes submissions as
// anonymized card lists in display order. The slot->player mapping never
// leaves the server.
type Snapshot struct {
	ID                  string                `json:"game_id"`
	Owner               string                `json:"owner"`
	ActivePlayers       []string              `json:"active_players"`
	Spectators          []string              `json:"spectators"`
	PlayerStatus        map[string]ConnStatus `json:"player_status"`
	Round               int                   `json:"current_round"`
	Phase               Phase                 `json:"state"`
	Prompt              *PromptCard           `json:"current_black_card,omitempty"`
	Hand                []string              `json:"your_cards"`
	Scores              map[string]int        `json:"scores"`
	Judge               string                `json:"czar,omitempty"`
	SubmittedCount      int                   `json:"submitted_count"`
	Submissions         [][]string            `json:"submissions,omitempty"`
	TentativeWinnerSlot *int                  `json:"tentative_winner_slot,omitempty"`
	Winner              string                `json:"winner,omitempty"`
	WinningCards        []string              `json:"winning_cards,omitempty"`
	TimerSeconds        int                   `json:"currentTimerSeconds"`
	TimerTotalSeconds   int                   `json:"currentTimerTotalSeconds"`
	Paused              bool                  `json:"paused"`
	Settings            Settings              `json:"settings"`
	History             []HistoryEntry        `json:"history,omitempty"`
}

// Snapshot builds the view of the room for one player.
func (r *Room) Snapshot(forPlayer string, includeHistory bool) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ID:                r.id,
		Owner:             r.owner,
		ActivePlayers:     append([]string(nil), r.activePlayers...),
		Spectators:        append([]string(nil), r.spectators...),
		PlayerStatus:      make(map[string]ConnStatus, len(r.status)),
		Round:             r.round,
		Phase:             r.phase,
		Hand:              append([]string(nil), r.hands[forPlayer]...),
		Scores:            make(map[string]int, len(r.scores)),
		Judge:             r.judge,
		SubmittedCount:    len(r.submissions),
		Winner:            r.winner,
		WinningCards:      append([]string(nil), r.winningCards...),
		TimerSeconds:      r.timerLeft,
		TimerTotalSeconds: r.timerTotal,
		Paused:            r.paused,
		Settings:          r.settings,
	}
	for name, st := range r.status {
		snap.PlayerStatus[name] = st
	}
	for name, score := range r.scores {
		snap.Scores[name] = score
	}
	if r.phase != PhaseLobby && r.prompt.Text != "" {
		prompt := r.prompt
		snap.Prompt = &prompt
	}

	if r.phase == PhaseJudging {
		snap.Submissions = make([][]string, 0, len(r.displayOrder))
		for _, p := range r.displayOrder {
			snap.Submissions = append(snap.Submissions, append([]string(nil), r.submissions[p]...))
		}
		if forPlayer == r.judge && r.tentativeWinner != "" {
			if slot := indexOf(r.displayOrder, r.tentativeWinner); slot >= 0 {
				snap.TentativeWinnerSlot = &slot
			}
		}
	}

	if includeHistory {
		snap.History = append([]HistoryEntry(nil), r.history...)
	}
	return snap
}

// ============================================================================
// Helpers
// ============================================================================

func (r *Room) memberRoleLocked(name string) string {
	if indexOf(r.activePlayers, name) >= 0 {
		return "player"
	}
	if indexOf(r.spectators, name) >= 0 {
		return "spectator"
	}
	return ""
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func removeName(list []string, name string) []string {
	if i := indexOf(list, name); i >= 0 {
		return append(list[:i], list[i+1:]...)
	}
	return list
}
