package domain

// Message types exchanged over the arena WebSocket
const (
	MessageYourID            = "your_id"
	MessageOnlineUsers       = "online_users"
	MessageChallenge         = "challenge"
	MessageChallengeReceived = "challenge_received"
	MessageChallengeAccepted = "challenge_accepted"
	MessageStartBotBattle    = "start_bot_battle"
	MessageBattleReady       = "battle_ready"
	MessageBattleError       = "battle_error"
)

// InboundMessage is any client->server message. Fields not used by the
// given type are left zero.
type InboundMessage struct {
	Type       string       `json:"type"`
	OpponentID ContestantID `json:"opponentId,omitempty"`
	FromID     ContestantID `json:"fromId,omitempty"`
	ToID       ContestantID `json:"toId,omitempty"`
}

// YourIDMessage tells a freshly connected client who it is
type YourIDMessage struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// OnlineUser is one entry of the presence list
type OnlineUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// OnlineUsersMessage carries the full presence list
type OnlineUsersMessage struct {
	Type  string       `json:"type"`
	Users []OnlineUser `json:"users"`
}

// ChallengeReceivedMessage is forwarded to the challenged user
type ChallengeReceivedMessage struct {
	Type         string `json:"type"`
	FromID       int64  `json:"fromId"`
	FromUsername string `json:"fromUsername"`
}

// Contestant identifies one side of a battle for display
type Contestant struct {
	ID       ContestantID `json:"id"`
	Username string       `json:"username"`
}

// BattleReadyMessage carries a resolved battle to its participants
type BattleReadyMessage struct {
	Type     string        `json:"type"`
	Player1  Contestant    `json:"player1"`
	Player2  Contestant    `json:"player2"`
	Pokemon1 PokemonCard   `json:"pokemon1"`
	Pokemon2 PokemonCard   `json:"pokemon2"`
	WinnerID *ContestantID `json:"winnerId"`
}

// BattleErrorMessage reports a failed matchmaking step
type BattleErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewBattleError builds a battle_error message
func NewBattleError(message string) BattleErrorMessage {
	return BattleErrorMessage{Type: MessageBattleError, Message: message}
}
