package distribution

// Event payloads published on the bus. Small and JSON-friendly.

type CreatedEvent struct {
	ID         int    `json:"id"`
	Item       string `json:"item"`
	Creator    string `json:"creator"`
	Recipients int    `json:"recipients"`
}

type CompletedEvent struct {
	ID         int    `json:"id"`
	Item       string `json:"item"`
	Creator    string `json:"creator"`
	Price      string `json:"price"`
	Received   int    `json:"received"`
	Recipients int    `json:"recipients"`
	Forced     bool   `json:"forced"`
}

type NotifyEvent struct {
	Distribution int    `json:"distribution"`
	Item         string `json:"item"`
	UserID       int64  `json:"user_id"`
	User         string `json:"user"`
	// Reason is set on skipped notifications: "opt-out", "cooldown",
	// "bot" or "permission".
	Reason string `json:"reason,omitempty"`
}
