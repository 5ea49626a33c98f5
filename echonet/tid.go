package echonet

import "sync/atomic"

// TIDCounter hands out transaction ids, wrapping from 0xFFFF to 0.
//
// Ids are not reserved: a reply that arrives after the counter has wrapped
// around and reused its id is indistinguishable from a fresh one.
type TIDCounter struct {
	n atomic.Uint32
}

// Next returns the next transaction id. The first call returns 1.
func (c *TIDCounter) Next() uint16 {
	return uint16(c.n.Add(1))
}
