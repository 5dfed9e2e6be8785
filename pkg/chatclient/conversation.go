package chatclient

import (
	"context"
	"sync"

	"scripturechat/pkg/domain"
	"scripturechat/pkg/transcript"
)

// Conversation keeps a live view of the caller's current session. Sent
// messages appear immediately as pending entries and are replaced by the
// stored copies once the stream delivers them.
type Conversation struct {
	client  *Client
	view    *transcript.View
	changed chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConversation returns an unstarted conversation.
func NewConversation(client *Client) *Conversation {
	return &Conversation{
		client:  client,
		view:    transcript.NewView(""),
		changed: make(chan struct{}, 1),
	}
}

// Start binds to the current session and begins streaming it.
func (c *Conversation) Start(ctx context.Context) (domain.Session, error) {
	session, err := c.client.CurrentSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	return session, c.follow(ctx, session.ID)
}

// NewSession starts a fresh session and switches the view to it. Updates for
// the previous session are dropped from then on.
func (c *Conversation) NewSession(ctx context.Context) (domain.Session, error) {
	session, err := c.client.NewSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	return session, c.follow(ctx, session.ID)
}

// Send shows the message locally, then submits it to the bound session. The
// stored turns arrive through the stream. A rejected send withdraws the
// local entry.
func (c *Conversation) Send(ctx context.Context, message string) (TurnResult, error) {
	pending := domain.NewUserTurn(c.view.SessionID(), message)
	c.view.AddPending(pending)
	c.notify()
	out, err := c.client.SendMessage(ctx, pending.SessionID, pending.ID, message)
	if err != nil {
		if c.view.DropPending(pending.ID) {
			c.notify()
		}
		return TurnResult{}, err
	}
	return out, nil
}

// Messages returns the merged transcript.
func (c *Conversation) Messages() []domain.ChatMessage { return c.view.Messages() }

// Status returns the transient status line.
func (c *Conversation) Status() string { return c.view.Status() }

// SessionID returns the bound session.
func (c *Conversation) SessionID() string { return c.view.SessionID() }

// Changed signals after the view changes. Signals coalesce.
func (c *Conversation) Changed() <-chan struct{} { return c.changed }

// Close stops the stream.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Conversation) follow(ctx context.Context, sessionID string) error {
	c.Close()
	c.view.Reset(sessionID)
	c.notify()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	updates, err := c.client.Watch(streamCtx, sessionID)
	if err != nil {
		cancel()
		return err
	}
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for u := range updates {
			if c.view.Apply(u) {
				c.notify()
			}
		}
	}()
	return nil
}

func (c *Conversation) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}
