package actionq

import (
	"context"
	"time"

	"dropbot/internal/transport"
)

// Kind discriminates the job variants the worker knows how to execute.
type Kind string

const (
	KindEditMessage     Kind = "edit-message"
	KindDeleteMessage   Kind = "delete-message"
	KindAddReaction     Kind = "add-reaction"
	KindCreateThread    Kind = "create-thread"
	KindAddThreadMember Kind = "add-thread-member"
	KindDeleteThread    Kind = "delete-thread"
	KindPostMessage     Kind = "post-message"
	KindNotifySale      Kind = "notify-sale"
)

// SalePayload carries everything a sale fan-out needs, captured at enqueue
// time so the job stays valid after the record it came from is gone.
type SalePayload struct {
	DistributionID int
	Item           string
	CreatorName    string
	Link           string
	Recipients     []transport.User
}

// Job is a tagged variant; only the fields relevant to Kind are set.
type Job struct {
	ID   string
	Kind Kind

	// Ref is the message operated on (edit, delete, reactions, thread
	// creation anchor).
	Ref transport.MessageRef
	// Thread is the target topic for member and delete operations.
	Thread transport.ThreadRef
	// Target is the chat for post-message.
	Target transport.ChatTarget
	// User is the member to add for add-thread-member.
	User transport.User

	Text       string
	Symbol     string
	ThreadName string
	// Delay is slept inside the worker before a delete-message executes.
	Delay time.Duration
	// DistributionID ties thread jobs back to their registry record.
	DistributionID int

	Sale *SalePayload
}

// Executor runs a single job against the platform. Implementations return
// nil on success, transport.ErrPermissionDenied (wrapped) when the platform
// refused the operation, and any other error for the rest.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}
