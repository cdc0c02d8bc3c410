// Package distribution tracks item drops: who was promised an item, who
// confirmed receipt, and what happens when a drop closes or sells.
//
// State lives only in memory. A restart forgets every open drop; the
// announcement messages left behind are the only trace.
package distribution
