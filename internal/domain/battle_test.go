package domain

import (
	"encoding/json"
	"testing"
)

func TestContestantIDJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A ContestantID  `json:"a"`
		B ContestantID  `json:"b"`
		W *ContestantID `json:"w"`
	}{A: 12, B: BotID})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"a":12,"b":"BOT","w":null}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}

	tests := []struct {
		in   string
		want ContestantID
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`"BOT"`, BotID},
		{`null`, 0},
	}
	for _, tt := range tests {
		var id ContestantID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.in, err)
			continue
		}
		if id != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, id, tt.want)
		}
	}

	var id ContestantID
	if err := json.Unmarshal([]byte(`"pikachu"`), &id); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestInboundMessageDecode(t *testing.T) {
	var msg InboundMessage
	if err := json.Unmarshal([]byte(`{"type":"challenge_accepted","fromId":3,"toId":"4"}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MessageChallengeAccepted || msg.FromID != 3 || msg.ToID != 4 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestPokemonBaseStat(t *testing.T) {
	p := &Pokemon{Stats: []Stat{
		{BaseStat: 35, Stat: NamedResource{Name: StatHP}},
		{BaseStat: 55, Stat: NamedResource{Name: StatAttack}},
	}}
	if v, ok := p.BaseStat(StatAttack); !ok || v != 55 {
		t.Errorf("BaseStat(attack) = %d, %v", v, ok)
	}
	if _, ok := p.BaseStat(StatSpeed); ok {
		t.Error("BaseStat(speed) reported present")
	}
}

func TestBattleRecordHelpers(t *testing.T) {
	w := ContestantID(2)
	rec := BattleRecord{Player1ID: 1, Player2ID: BotID, WinnerID: &w}
	if rec.IsTie() {
		t.Error("record with winner reported as tie")
	}
	if !rec.Involves(BotID) || !rec.Involves(1) || rec.Involves(2) {
		t.Error("Involves mismatch")
	}
}
