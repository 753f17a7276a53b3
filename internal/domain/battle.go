package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// BotID is the synthetic contestant that has no stored favorites.
// Real user ids are always positive.
const BotID ContestantID = -1

const botWireID = "BOT"

// ContestantID is a user id or BotID. The bot travels as the JSON string
// "BOT", users as JSON numbers.
type ContestantID int64

// UserContestant converts a user id into a contestant id
func UserContestant(userID int64) ContestantID {
	return ContestantID(userID)
}

// IsBot reports whether the id is the bot sentinel
func (c ContestantID) IsBot() bool {
	return c == BotID
}

// UserID returns the underlying user id; it is meaningless for the bot
func (c ContestantID) UserID() int64 {
	return int64(c)
}

func (c ContestantID) String() string {
	if c.IsBot() {
		return botWireID
	}
	return strconv.FormatInt(int64(c), 10)
}

// MarshalJSON implements json.Marshaler
func (c ContestantID) MarshalJSON() ([]byte, error) {
	if c.IsBot() {
		return json.Marshal(botWireID)
	}
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}

// UnmarshalJSON accepts a number, a numeric string, or "BOT"
func (c *ContestantID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == botWireID {
			*c = BotID
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid contestant id %q", s)
		}
		*c = ContestantID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid contestant id %s", data)
	}
	*c = ContestantID(n)
	return nil
}

// BattleRecord is one resolved battle in the append-only history.
// A nil WinnerID means the battle was a tie.
type BattleRecord struct {
	ID        int64         `json:"id"`
	Player1ID ContestantID  `json:"player1Id"`
	Player2ID ContestantID  `json:"player2Id"`
	WinnerID  *ContestantID `json:"winnerId"`
	Timestamp time.Time     `json:"timestamp"`
}

// IsTie reports whether the battle ended without a winner
func (b BattleRecord) IsTie() bool {
	return b.WinnerID == nil
}

// Involves reports whether the contestant took part in the battle
func (b BattleRecord) Involves(id ContestantID) bool {
	return b.Player1ID == id || b.Player2ID == id
}

// LeaderboardRow is a derived per-user aggregate
type LeaderboardRow struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Ties         int     `json:"ties"`
	TotalBattles int     `json:"totalBattles"`
	Score        int     `json:"score"`
	SuccessRate  float64 `json:"successRate"`
}

// LeaderboardResponse is the API response for the leaderboard page
type LeaderboardResponse struct {
	Leaderboard   []LeaderboardRow `json:"leaderboard"`
	CurrentUserID int64            `json:"currentUserId"`
}
