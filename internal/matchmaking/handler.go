// Package matchmaking turns realtime arena messages into battles.
package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ernie/pokearena/internal/battle"
	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/presence"
	leakybucket "github.com/kevinms/leakybucket-go"
)

const botUsername = "Bot"

// User-facing battle_error messages
const (
	msgNoFavorites       = "You have no favorite Pokémon."
	msgOpponentNoFavs    = "Opponent has no favorite Pokémon."
	msgPairRateLimited   = "One of the players has reached their daily battle limit."
	msgSelfChallenge     = "You can't challenge yourself!"
	msgBattleUnavailable = "Could not start the battle."
	msgTooManyRequests   = "Too many requests"
)

// Identity is the authenticated user behind a connection
type Identity struct {
	UserID      int64
	DisplayName string
}

// Contestant returns the identity as a battle contestant
func (i Identity) Contestant() domain.ContestantID {
	return domain.UserContestant(i.UserID)
}

// Resolver resolves and records one battle
type Resolver interface {
	Resolve(ctx context.Context, player1, player2 domain.ContestantID) (*battle.Result, error)
}

// Limiter reports whether a contestant may still battle today
type Limiter interface {
	CanBattle(ctx context.Context, id domain.ContestantID) (bool, error)
	Limit() int
}

// Presence is the part of the registry the handler needs
type Presence interface {
	Lookup(userID int64) (presence.Entry, bool)
	Send(userID int64, msg any) bool
}

// MessageObserver is told the type of every well-formed inbound message
type MessageObserver interface {
	MessageReceived(msgType string)
}

// Options configures the inbound flood limit and instrumentation
type Options struct {
	MessageRate  float64
	MessageBurst int64
	Observer     MessageObserver
}

// Handler processes inbound messages for every connected user. It holds no
// per-challenge state between messages.
type Handler struct {
	resolver Resolver
	limiter  Limiter
	presence Presence
	bucket   *leakybucket.Collector
	observer MessageObserver
	logger   *slog.Logger
}

// NewHandler creates a matchmaking handler
func NewHandler(resolver Resolver, limiter Limiter, presence Presence, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		resolver: resolver,
		limiter:  limiter,
		presence: presence,
		observer: opts.Observer,
		logger:   logger,
	}
	if opts.MessageRate > 0 && opts.MessageBurst > 0 {
		h.bucket = leakybucket.NewCollector(opts.MessageRate, opts.MessageBurst, true)
	}
	return h
}

// HandleMessage dispatches one raw inbound message from user
func (h *Handler) HandleMessage(ctx context.Context, user Identity, raw []byte) {
	if h.bucket != nil && h.bucket.Add(strconv.FormatInt(user.UserID, 10), 1) == 0 {
		h.logger.Warn("message flood", "user_id", user.UserID)
		h.reply(user, msgTooManyRequests)
		return
	}

	var msg domain.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("malformed message", "user_id", user.UserID, "error", err)
		return
	}

	if h.observer != nil {
		h.observer.MessageReceived(knownType(msg.Type))
	}

	switch msg.Type {
	case domain.MessageChallenge:
		h.challenge(ctx, user, msg.OpponentID)
	case domain.MessageChallengeAccepted:
		h.challengeAccepted(ctx, user, msg.FromID, msg.ToID)
	case domain.MessageStartBotBattle:
		h.startBotBattle(ctx, user)
	default:
		h.logger.Warn("unknown message type", "user_id", user.UserID, "type", msg.Type)
	}
}

func (h *Handler) challenge(ctx context.Context, user Identity, opponent domain.ContestantID) {
	if opponent == user.Contestant() {
		h.reply(user, h.errorMessage(battle.ErrSelfChallenge, user.Contestant(), false))
		return
	}

	ok, err := h.limiter.CanBattle(ctx, user.Contestant())
	if err != nil {
		h.logger.Error("checking daily limit", "user_id", user.UserID, "error", err)
		h.reply(user, msgBattleUnavailable)
		return
	}
	if !ok {
		h.reply(user, h.rateLimitedMessage())
		return
	}

	if opponent.IsBot() || opponent <= 0 {
		h.logger.Warn("challenge to invalid opponent", "user_id", user.UserID, "opponent", opponent.String())
		return
	}
	sent := h.presence.Send(opponent.UserID(), domain.ChallengeReceivedMessage{
		Type:         domain.MessageChallengeReceived,
		FromID:       user.UserID,
		FromUsername: user.DisplayName,
	})
	h.logger.Info("challenge", "from", user.UserID, "to", opponent.UserID(), "delivered", sent)
}

// challengeAccepted is sent by the challenged user. fromID is the
// challenger and becomes player1.
func (h *Handler) challengeAccepted(ctx context.Context, user Identity, fromID, toID domain.ContestantID) {
	if toID == 0 {
		toID = user.Contestant()
	}
	if toID != user.Contestant() {
		h.logger.Warn("acceptance on behalf of another user", "user_id", user.UserID, "to", toID.String())
		h.reply(user, msgBattleUnavailable)
		return
	}
	if fromID == toID {
		h.reply(user, h.errorMessage(battle.ErrSelfChallenge, user.Contestant(), false))
		return
	}
	if fromID.IsBot() || fromID <= 0 {
		h.logger.Warn("acceptance of invalid challenger", "user_id", user.UserID, "from", fromID.String())
		h.reply(user, msgBattleUnavailable)
		return
	}

	ok1, err1 := h.limiter.CanBattle(ctx, fromID)
	ok2, err2 := h.limiter.CanBattle(ctx, toID)
	if err := errors.Join(err1, err2); err != nil {
		h.logger.Error("checking daily limit", "from", fromID.String(), "to", toID.String(), "error", err)
		h.sendPair(fromID, toID, msgBattleUnavailable)
		return
	}
	if !ok1 || !ok2 {
		h.sendPair(fromID, toID, msgPairRateLimited)
		return
	}

	p1, ok1 := h.presence.Lookup(fromID.UserID())
	p2, ok2 := h.presence.Lookup(toID.UserID())
	if !ok1 || !ok2 {
		h.logger.Info("challenge accepted but a player is offline", "from", fromID.String(), "to", toID.String())
		return
	}

	res, err := h.resolver.Resolve(ctx, fromID, toID)
	if err != nil {
		h.logger.Warn("battle failed", "from", fromID.String(), "to", toID.String(), "error", err)
		h.sendPair(fromID, toID, h.errorMessage(err, fromID, true))
		return
	}

	msg := battleReady(
		domain.Contestant{ID: fromID, Username: p1.DisplayName},
		domain.Contestant{ID: toID, Username: p2.DisplayName},
		res,
	)
	h.presence.Send(fromID.UserID(), msg)
	h.presence.Send(toID.UserID(), msg)
}

func (h *Handler) startBotBattle(ctx context.Context, user Identity) {
	ok, err := h.limiter.CanBattle(ctx, user.Contestant())
	if err != nil {
		h.logger.Error("checking daily limit", "user_id", user.UserID, "error", err)
		h.reply(user, msgBattleUnavailable)
		return
	}
	if !ok {
		h.reply(user, h.rateLimitedMessage())
		return
	}

	res, err := h.resolver.Resolve(ctx, user.Contestant(), domain.BotID)
	if err != nil {
		h.logger.Warn("bot battle failed", "user_id", user.UserID, "error", err)
		h.reply(user, h.errorMessage(err, user.Contestant(), false))
		return
	}

	h.presence.Send(user.UserID, battleReady(
		domain.Contestant{ID: user.Contestant(), Username: user.DisplayName},
		domain.Contestant{ID: domain.BotID, Username: botUsername},
		res,
	))
}

// knownType bounds metric label values to the protocol's message types
func knownType(t string) string {
	switch t {
	case domain.MessageChallenge, domain.MessageChallengeAccepted, domain.MessageStartBotBattle:
		return t
	default:
		return "unknown"
	}
}

func battleReady(p1, p2 domain.Contestant, res *battle.Result) domain.BattleReadyMessage {
	return domain.BattleReadyMessage{
		Type:     domain.MessageBattleReady,
		Player1:  p1,
		Player2:  p2,
		Pokemon1: res.Pokemon1.Card(),
		Pokemon2: res.Pokemon2.Card(),
		WinnerID: res.Record.WinnerID,
	}
}

func (h *Handler) rateLimitedMessage() string {
	return fmt.Sprintf("You have reached your daily battle limit of %d.", h.limiter.Limit())
}

// errorMessage maps a battle failure to the text shown to players. Messages
// are worded from player1's point of view.
func (h *Handler) errorMessage(err error, player1 domain.ContestantID, pair bool) string {
	var nf *battle.NoFavoritesError
	switch {
	case errors.As(err, &nf):
		if nf.Player == player1 {
			return msgNoFavorites
		}
		return msgOpponentNoFavs
	case errors.Is(err, battle.ErrSelfChallenge):
		return msgSelfChallenge
	case errors.Is(err, battle.ErrRateLimited):
		if pair {
			return msgPairRateLimited
		}
		return h.rateLimitedMessage()
	default:
		return msgBattleUnavailable
	}
}

func (h *Handler) reply(user Identity, message string) {
	h.presence.Send(user.UserID, domain.NewBattleError(message))
}

func (h *Handler) sendPair(a, b domain.ContestantID, message string) {
	msg := domain.NewBattleError(message)
	h.presence.Send(a.UserID(), msg)
	h.presence.Send(b.UserID(), msg)
}
