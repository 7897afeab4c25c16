// Package chatclient keeps the conversation state of one chat client and
// mediates every call to the chat server.
package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SessionKey is the storage key holding the session identifier.
const SessionKey = "session_id"

// ErrorReply replaces the assistant answer when a send fails.
const ErrorReply = "Error processing request"

const (
	msgIndexRefreshed = "Index refreshed successfully"
	msgIndexFailed    = "Failed to refresh index"
	msgHistoryCleared = "Chat history cleared"
)

var (
	ErrEmptyMessage   = errors.New("chatclient: message is empty")
	ErrSendPending    = errors.New("chatclient: a message is already being sent")
	ErrRefreshPending = errors.New("chatclient: index refresh already in progress")
	ErrLoadPending    = errors.New("chatclient: history is already loading")
)

// ChangeKind names the part of the client state an observer should redraw.
type ChangeKind int

const (
	ChangeMessages     ChangeKind = iota // transcript appended, replaced or cleared
	ChangeInputCleared                   // a send was accepted; the input box should empty
	ChangeSending                        // a reply started or stopped being pending
	ChangeRefreshing                     // an index refresh started or finished
	ChangeLoading                        // a history load started or finished
	ChangeNotification                   // the notification was replaced
	ChangeSession                        // the session id changed
	ChangeScroll                         // the view should jump to the newest message
)

// Observer is told about state changes after they happen. It runs on the
// goroutine that made the change and must not block.
type Observer func(ChangeKind)

// State is a consistent snapshot of the client.
type State struct {
	SessionID    string
	Messages     []Message
	Sending      bool
	Refreshing   bool
	Loading      bool
	Notification *Notification
}

// Option configures a Client in New.
type Option func(*Client)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver installs o to be told about every state change.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// WithIDGenerator replaces NewSessionID.
func WithIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Client is one conversation as seen by a chat front end. It is safe for
// concurrent use.
type Client struct {
	backend Backend
	storage Storage
	logger  *zap.Logger
	observe Observer
	newID   func() string

	mu           sync.Mutex
	sessionID    string
	messages     []Message
	sending      bool
	refreshing   bool
	loading      bool
	notification *Notification
}

// New restores the session identifier from storage, creating and persisting
// one on first use. Storage failures are logged; the client still starts.
func New(backend Backend, storage Storage, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		storage: storage,
		logger:  zap.NewNop(),
		newID:   NewSessionID,
	}
	for _, opt := range opts {
		opt(c)
	}

	id, ok, err := storage.Get(SessionKey)
	if err != nil {
		c.logger.Warn("read session id", zap.Error(err))
	}
	if !ok || id == "" {
		id = c.newID()
		c.persist(id)
		c.logger.Debug("created session", zap.String("session_id", id))
	}
	c.sessionID = id
	return c
}

func (c *Client) persist(id string) {
	if err := c.storage.Set(SessionKey, id); err != nil {
		c.logger.Warn("persist session id", zap.String("session_id", id), zap.Error(err))
	}
}

func (c *Client) emit(kinds ...ChangeKind) {
	if c.observe == nil {
		return
	}
	for _, k := range kinds {
		c.observe(k)
	}
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a copy of the transcript.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Client) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Client) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

func (c *Client) Notification() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notification == nil {
		return Notification{}, false
	}
	return *c.notification, true
}

func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		SessionID:  c.sessionID,
		Messages:   append([]Message(nil), c.messages...),
		Sending:    c.sending,
		Refreshing: c.refreshing,
		Loading:    c.loading,
	}
	if c.notification != nil {
		n := *c.notification
		s.Notification = &n
	}
	return s
}

// LoadHistory replaces the transcript with the server's copy. On failure the
// transcript is left alone and the error is only logged and returned.
func (c *Client) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrLoadPending
	}
	c.loading = true
	sid := c.sessionID
	c.mu.Unlock()
	c.emit(ChangeLoading)

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.emit(ChangeLoading)
	}()

	history, err := c.backend.History(ctx, sid)
	if err != nil {
		c.logger.Warn("load history failed", zap.String("session_id", sid), zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.sessionID != sid {
		c.mu.Unlock()
		c.logger.Debug("discarding history of a reset session", zap.String("session_id", sid))
		return nil
	}
	c.messages = append([]Message(nil), history...)
	c.mu.Unlock()

	c.emit(ChangeMessages, ChangeScroll)
	return nil
}

// PendingSend is a message already shown in the transcript whose reply has
// not been requested yet.
type PendingSend struct {
	c         *Client
	text      string
	sessionID string

	once  sync.Once
	reply Message
}

// StartSend appends text as a user message and marks the client as sending.
// Blank text is rejected with ErrEmptyMessage and changes nothing; a second
// call before the first completes is rejected with ErrSendPending.
func (c *Client) StartSend(text string) (*PendingSend, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendPending
	}
	c.messages = append(c.messages, Message{Text: text, IsUser: true})
	c.sending = true
	sid := c.sessionID
	c.mu.Unlock()

	c.emit(ChangeMessages, ChangeInputCleared, ChangeSending)
	return &PendingSend{c: c, text: text, sessionID: sid}, nil
}

// Wait performs the chat request and appends the reply, or ErrorReply if the
// request failed. Later calls return the first result.
func (p *PendingSend) Wait(ctx context.Context) Message {
	p.once.Do(func() {
		p.reply = p.c.finishSend(ctx, p.text, p.sessionID)
	})
	return p.reply
}

func (c *Client) finishSend(ctx context.Context, text, sid string) Message {
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.emit(ChangeSending, ChangeScroll)
	}()

	reply := Message{IsUser: false}
	resp, err := c.backend.Chat(ctx, sid, text)
	if err != nil {
		c.logger.Warn("chat request failed", zap.String("session_id", sid), zap.Error(err))
		reply.Text = ErrorReply
	} else {
		reply.Text = resp
	}

	c.mu.Lock()
	if c.sessionID != sid {
		// The conversation was reset while waiting.
		c.mu.Unlock()
		c.logger.Debug("dropping reply for a reset session", zap.String("session_id", sid))
		return reply
	}
	c.messages = append(c.messages, reply)
	c.mu.Unlock()

	c.emit(ChangeMessages)
	return reply
}

// Send is StartSend followed by Wait.
func (c *Client) Send(ctx context.Context, text string) (Message, error) {
	p, err := c.StartSend(text)
	if err != nil {
		return Message{}, err
	}
	return p.Wait(ctx), nil
}

// RefreshIndex asks the server to rebuild its retrieval index and reports the
// outcome as a notification. The only error is ErrRefreshPending.
func (c *Client) RefreshIndex(ctx context.Context) (Notification, error) {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return Notification{}, ErrRefreshPending
	}
	c.refreshing = true
	c.mu.Unlock()
	c.emit(ChangeRefreshing)

	n := Notification{Message: msgIndexRefreshed, Kind: NotifySuccess}
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.notification = &n
		c.mu.Unlock()
		c.emit(ChangeRefreshing, ChangeNotification)
	}()

	if err := c.backend.RefreshIndex(ctx); err != nil {
		c.logger.Warn("refresh index failed", zap.Error(err))
		n = Notification{Message: msgIndexFailed, Kind: NotifyError}
	}
	return n, nil
}

// Reset starts a new conversation locally. The old one stays on the server
// but is no longer reachable from this client.
func (c *Client) Reset() string {
	id := c.newID()

	c.mu.Lock()
	c.sessionID = id
	c.messages = nil
	c.notification = &Notification{Message: msgHistoryCleared, Kind: NotifySuccess}
	c.mu.Unlock()

	c.persist(id)
	c.logger.Info("conversation reset", zap.String("session_id", id))
	c.emit(ChangeSession, ChangeMessages, ChangeNotification)
	return id
}
