package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ernie/pokearena/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestBattleRecorded(t *testing.T) {
	m := New()
	ash := domain.UserContestant(1)
	bot := domain.BotID

	m.BattleRecorded(context.Background(), domain.BattleRecord{Player1ID: ash, Player2ID: bot, WinnerID: &ash})
	m.BattleRecorded(context.Background(), domain.BattleRecord{Player1ID: ash, Player2ID: bot, WinnerID: &bot})
	m.BattleRecorded(context.Background(), domain.BattleRecord{Player1ID: ash, Player2ID: 2})

	out := scrape(t, m)
	for _, want := range []string{
		`pokearena_battles_total{kind="bot",outcome="win"} 1`,
		`pokearena_battles_total{kind="bot",outcome="bot_win"} 1`,
		`pokearena_battles_total{kind="pvp",outcome="tie"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestOnlineAndMessages(t *testing.T) {
	m := New()
	m.SetOnline(3)
	m.MessageReceived("challenge")
	m.MessageReceived("challenge")

	out := scrape(t, m)
	if !strings.Contains(out, "pokearena_online_users 3") {
		t.Error("online gauge not exported")
	}
	if !strings.Contains(out, `pokearena_ws_messages_total{type="challenge"} 2`) {
		t.Error("message counter not exported")
	}
}

func TestMiddleware(t *testing.T) {
	m := New()
	h := m.Middleware("leaderboard", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	out := scrape(t, m)
	if !strings.Contains(out, `http_requests_total{endpoint="leaderboard",method="GET",status="401"} 1`) {
		t.Errorf("request counter missing:\n%s", out)
	}
}

// Optional writer interfaces are reached through Unwrap, not redeclared.
func TestMiddlewareUnwrapsWriter(t *testing.T) {
	m := New()
	var flushErr error
	h := m.Middleware("videos", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); ok {
			t.Error("status writer should not implement Hijacker itself")
		}
		w.Write([]byte("ok"))
		flushErr = http.NewResponseController(w).Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pokemon/videos/pikachu", nil))
	if flushErr != nil {
		t.Errorf("Flush through middleware: %v", flushErr)
	}
	if !rec.Flushed {
		t.Error("underlying recorder was not flushed")
	}
}
