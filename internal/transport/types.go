package transport

import (
	"context"
	"errors"
)

// ErrPermissionDenied marks a delivery the platform refused because the
// recipient disallows it (e.g. the user blocked the bot or never opened a
// direct chat). Callers treat it as a transient, non-retryable skip.
var ErrPermissionDenied = errors.New("permission denied by recipient")

type User struct {
	ID          int64
	Username    string
	DisplayName string
	IsBot       bool
}

// Name returns the best human-readable label for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "?"
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

type ThreadRef struct {
	ChatID   int64
	ThreadID int
}

func (r ThreadRef) IsZero() bool { return r.ThreadID == 0 }

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateReaction UpdateKind = "reaction"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Reaction *ReactionEvent
}

type Message struct {
	ID     int
	ChatID int64
	From   User
	Text   string
	// Mentions are users referenced in the message body. Plain @username
	// mentions resolve without a user ID on Telegram; only text_mention
	// entities carry the full user.
	Mentions []User
}

// ReactionEvent describes one user's reaction change on one message.
// Added/Removed carry emoji symbols; platforms that report whole reaction
// lists are diffed by the adapter.
type ReactionEvent struct {
	MessageID int
	ChatID    int64
	From      User
	Added     []string
	Removed   []string
}

// Adapter is the messaging platform collaborator. All outbound operations
// are expected to be invoked from the paced action queue (or, for the few
// calls that need the returned handle, synchronously by the caller).
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendMessage(ctx context.Context, to ChatTarget, text string) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AddReaction(ctx context.Context, ref MessageRef, symbol string) error
	RemoveReaction(ctx context.Context, ref MessageRef, symbol string) error
	CreateThread(ctx context.Context, ref MessageRef, name string) (ThreadRef, error)
	AddThreadMember(ctx context.Context, thread ThreadRef, user User) error
	DeleteThread(ctx context.Context, thread ThreadRef) error
	SendDirect(ctx context.Context, user User, text string) error
}
