package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scripturechat/internal/util"
	"scripturechat/pkg/domain"
	"scripturechat/pkg/feed"
	"scripturechat/pkg/store"
)

// Route names the branch a turn took.
type Route string

const (
	RouteScripture Route = "scripture"
	RouteFallback  Route = "fallback"
	RouteFailed    Route = "failed"
)

// TurnOutcome describes one completed turn. Stale is set when the user started a
// new session while the turn was in flight; BotTurn was still written to the
// captured session.
type TurnOutcome struct {
	SessionID string             `json:"sessionId"`
	UserTurn  domain.ChatMessage `json:"userTurn"`
	BotTurn   domain.ChatMessage `json:"botTurn"`
	Route     Route              `json:"route"`
	Stale     bool               `json:"stale"`
}

const maxMessageIDLen = 64

// SendMessage runs one turn: the user message is persisted first, then the
// passage lookup decides between commentary and a conversational reply.
// Exactly one bot turn is persisted per accepted message.
func (a *App) SendMessage(ctx context.Context, userID, sessionID, message string) (TurnOutcome, error) {
	return a.SendMessageWithID(ctx, userID, sessionID, "", message)
}

// SendMessageWithID is SendMessage with a caller-chosen user turn ID, so a
// client can reconcile its provisional entry with the stored one.
func (a *App) SendMessageWithID(ctx context.Context, userID, sessionID, messageID, message string) (TurnOutcome, error) {
	messageID = strings.TrimSpace(messageID)
	if len(messageID) > maxMessageIDLen {
		return TurnOutcome{}, ErrInvalidMessageID
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return TurnOutcome{}, ErrUserRequired
	}
	if strings.TrimSpace(message) == "" {
		return TurnOutcome{}, ErrEmptyMessage
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		session, err := a.CurrentSession(ctx, userID)
		if err != nil {
			return TurnOutcome{}, err
		}
		sessionID = session.ID
	} else if _, err := a.authorizeSession(ctx, userID, sessionID); err != nil {
		return TurnOutcome{}, err
	}
	logger := util.LoggerFromContext(ctx).With("session_id", sessionID, "user_id", userID)

	userTurn := domain.NewUserTurn(sessionID, message)
	if messageID != "" {
		userTurn.ID = messageID
	}
	stored, err := a.store.AppendMessage(ctx, userTurn)
	if errors.Is(err, store.ErrDuplicateMessage) {
		return TurnOutcome{}, fmt.Errorf("%w: %s", ErrDuplicateMessage, userTurn.ID)
	}
	if err != nil {
		return TurnOutcome{}, fmt.Errorf("append user turn: %w", err)
	}
	userTurn = stored
	a.publish(ctx, feed.Appended(sessionID, userTurn.ID))
	a.recordHistory(ctx, userID, message)

	bot, route := a.runPipeline(ctx, sessionID, userTurn, message)
	out := TurnOutcome{SessionID: sessionID, UserTurn: userTurn, Route: route}

	current, ok, err := a.sessions.CurrentSession(ctx, userID)
	if err != nil {
		logger.Warn("current session check failed", "err", err)
	} else if ok && current != sessionID {
		out.Stale = true
		logger.Info("turn finished after session change", "current_session_id", current)
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	bot, err = a.store.AppendMessage(persistCtx, bot)
	if err != nil {
		a.publish(persistCtx, feed.Status(sessionID, ""))
		return out, fmt.Errorf("append bot turn: %w", err)
	}
	out.BotTurn = bot
	a.publish(persistCtx, feed.Appended(sessionID, bot.ID))
	a.publish(persistCtx, feed.Status(sessionID, ""))
	logger.Info("turn complete", "route", route, "stale", out.Stale)
	return out, nil
}

// runPipeline never fails: errors and panics become an error turn.
func (a *App) runPipeline(ctx context.Context, sessionID string, userTurn domain.ChatMessage, message string) (bot domain.ChatMessage, route Route) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn pipeline panic", "session_id", sessionID, "panic", r)
			bot, route = failedTurn(sessionID, fmt.Errorf("%v", r)), RouteFailed
		}
	}()
	bot, route, err := a.route(ctx, sessionID, userTurn, message)
	if err != nil {
		slog.Error("turn pipeline failed", "session_id", sessionID, "err", err)
		return failedTurn(sessionID, err), RouteFailed
	}
	return bot, route
}

func (a *App) route(ctx context.Context, sessionID string, userTurn domain.ChatMessage, message string) (domain.ChatMessage, Route, error) {
	passage, commentator := a.splitter.Split(message)
	if passage != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
		found, err := a.lookup.Lookup(lookupCtx, passage)
		cancel()
		if err == nil {
			res := a.roster.Resolve(commentator)
			a.publish(ctx, feed.Status(sessionID, res.Advisory()))
			text := a.commentary.Generate(ctx, found.VerseText(), res)
			return domain.NewScriptureTurn(sessionID, found.Result(), text), RouteScripture, nil
		}
		slog.Debug("passage lookup missed", "session_id", sessionID, "passage", passage, "err", err)
	}

	a.publish(ctx, feed.Status(sessionID, StatusThinking))
	history, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, "", fmt.Errorf("load transcript: %w", err)
	}
	prior := make([]domain.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.ID == userTurn.ID && msg.Seq == userTurn.Seq {
			continue
		}
		prior = append(prior, msg)
	}
	reply := a.fallback.Generate(ctx, prior, message)
	return domain.NewReplyTurn(sessionID, reply), RouteFallback, nil
}

func failedTurn(sessionID string, err error) domain.ChatMessage {
	return domain.NewErrorTurn(sessionID, "An unexpected error occurred: "+err.Error())
}

func (a *App) recordHistory(ctx context.Context, userID, text string) {
	entry := domain.HistoryEntry{ID: util.NewID(), UserID: userID, Text: text, CreatedAt: a.now()}
	if err := a.history.RecordQuery(ctx, entry); err != nil {
		slog.Warn("history record failed", "user_id", userID, "err", err)
	}
}
