package service

import "github.com/spec-kit/access-ticket-bot/internal/domain"

// closedTicketMemory is how many closed tickets stay resolvable in memory so
// late clicks and repeated closes answer ALREADY_CLOSED. Older ones live
// only in the archive.
const closedTicketMemory = 256

// closedTickets is a FIFO of recently closed tickets, resolvable by ticket
// ID, channel ID, external key or any of their review IDs.
type closedTickets struct {
	limit int
	order []string
	byID  map[string]*domain.Ticket
	refs  map[string][]string
	index map[string]string
}

func newClosedTickets(limit int) *closedTickets {
	if limit <= 0 {
		limit = closedTicketMemory
	}
	return &closedTickets{
		limit: limit,
		byID:  make(map[string]*domain.Ticket),
		refs:  make(map[string][]string),
		index: make(map[string]string),
	}
}

func (c *closedTickets) add(t *domain.Ticket, reviewIDs []string) {
	if _, ok := c.byID[t.ID]; ok {
		return
	}
	for len(c.order) >= c.limit {
		c.evict(c.order[0])
		c.order = c.order[1:]
	}
	refs := append([]string{t.ChannelID, t.ExternalKey}, reviewIDs...)
	c.byID[t.ID] = t
	c.refs[t.ID] = refs
	for _, ref := range refs {
		if ref != "" {
			c.index[ref] = t.ID
		}
	}
	c.order = append(c.order, t.ID)
}

func (c *closedTickets) evict(id string) {
	for _, ref := range c.refs[id] {
		if c.index[ref] == id {
			delete(c.index, ref)
		}
	}
	delete(c.refs, id)
	delete(c.byID, id)
}

// lookup resolves any reference add indexed.
func (c *closedTickets) lookup(ref string) (*domain.Ticket, bool) {
	if t, ok := c.byID[ref]; ok {
		return t, true
	}
	id, ok := c.index[ref]
	if !ok {
		return nil, false
	}
	return c.byID[id], true
}

func (c *closedTickets) len() int {
	return len(c.order)
}
