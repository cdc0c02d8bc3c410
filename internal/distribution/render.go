package distribution

import (
	"fmt"
	"strings"
)

// Render produces the announcement body for a record. The output is a pure
// function of the record's fields, so rendering the same state twice yields
// byte-identical text and the editor can skip no-op edits upstream.
func Render(d *Distribution) string {
	var b strings.Builder

	if d.ID != 0 {
		fmt.Fprintf(&b, "\U0001f4e6 Drop #%d\n", d.ID)
	} else {
		b.WriteString("\U0001f4e6 Drop\n")
	}
	fmt.Fprintf(&b, "\U0001f381 Item: %s\n", d.Item)
	fmt.Fprintf(&b, "\U0001f4c5 Created: %s\n", d.CreatedAt.Format("01/02 15:04"))
	fmt.Fprintf(&b, "\U0001f464 By: %s\n", d.Creator.Name())
	b.WriteString("\n\U0001f3af Recipients:\n")
	for i, r := range d.Recipients {
		fmt.Fprintf(&b, "%s %s", numberMarkers[i], r.Name())
		if _, ok := d.Received[i]; ok {
			b.WriteString(" ✅")
		}
		b.WriteByte('\n')
	}
	last := len(d.Recipients) - 1
	if last < 0 {
		last = 0
	}
	fmt.Fprintf(&b, "\n\U0001f4e2 React %s-%s to confirm receipt · %s closes · %s notifies a sale\n",
		numberMarkers[0], numberMarkers[last], SymbolComplete, SymbolSale)
	fmt.Fprintf(&b, "\U0001f4b8 Price: %s", d.Price)

	return b.String()
}

// RenderClosed is the terminal summary posted when a drop closes.
func RenderClosed(d *Distribution, forced bool) string {
	var b strings.Builder

	if forced {
		fmt.Fprintf(&b, "✅ Drop #%d closed\n", d.ID)
	} else {
		fmt.Fprintf(&b, "✅ Drop #%d closed, all recipients confirmed\n", d.ID)
	}
	fmt.Fprintf(&b, "\U0001f381 Item: %s\n", d.Item)
	fmt.Fprintf(&b, "\U0001f464 By: %s\n", d.Creator.Name())
	fmt.Fprintf(&b, "\U0001f465 Confirmed: %d/%d\n", len(d.Received), len(d.Recipients))
	fmt.Fprintf(&b, "\U0001f4b8 Price: %s", d.Price)

	return b.String()
}
