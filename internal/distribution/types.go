package distribution

import (
	"errors"
	"time"

	"dropbot/internal/transport"
)

// ErrNotFound reports an operation against a distribution id that is not in
// the registry (never created, or already closed).
var ErrNotFound = errors.New("distribution not found")

// MaxRecipients is the hard cap on recipients per drop; it matches the
// number of numbered reaction markers available.
const MaxRecipients = 10

// PriceUnset is the price value before anyone records one.
const PriceUnset = "not set"

// maxReactionsPerMessage is the platform ceiling on reactions the bot
// attaches to a single announcement.
const maxReactionsPerMessage = 12

// numberMarkers[i] is the reaction marking recipient slot i as received.
var numberMarkers = [MaxRecipients]string{
	"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣",
	"6️⃣", "7️⃣", "8️⃣", "9️⃣", "\U0001f51f",
}

const (
	// SymbolComplete force-closes a drop regardless of coverage.
	SymbolComplete = "✅"
	// SymbolSale triggers the sale notification fan-out.
	SymbolSale = "\U0001f4b0"
)

// markerIndex maps a numbered marker back to its recipient slot.
func markerIndex(symbol string) (int, bool) {
	for i, m := range numberMarkers {
		if symbol == m {
			return i, true
		}
	}
	return 0, false
}

// Distribution is one tracked drop. The announcement message id doubles as
// the distribution id, so reaction events address records directly.
type Distribution struct {
	ID        int
	ChatID    int64
	Creator   transport.User
	Item      string
	Price     string
	CreatedAt time.Time

	Recipients []transport.User
	// Received holds recipient slot indexes confirmed so far.
	Received map[int]struct{}

	Announce transport.MessageRef
	Thread   transport.ThreadRef
}

func (d *Distribution) covered() bool {
	return len(d.Recipients) > 0 && len(d.Received) == len(d.Recipients)
}

// clone returns a deep copy safe to use outside the registry lock.
func (d *Distribution) clone() *Distribution {
	c := *d
	c.Recipients = append([]transport.User(nil), d.Recipients...)
	c.Received = make(map[int]struct{}, len(d.Received))
	for i := range d.Received {
		c.Received[i] = struct{}{}
	}
	return &c
}
