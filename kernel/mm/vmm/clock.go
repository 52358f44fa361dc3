package vmm

import (
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
)

// clockSlots is the number of eviction candidates tracked by the clock.
const clockSlots = entriesPerTable

// evictionCandidate is a user page backed by an allocator-owned frame.
type evictionCandidate struct {
	pt       *PageTable
	page     mm.Page
	used     bool
	occupied bool
}

type candidateKey struct {
	pt   *PageTable
	page mm.Page
}

// clockEvictor implements second-chance page replacement over a fixed ring of
// candidate slots. The referenced bit of a slot is the logical OR of the bit
// kept here and the accessed bit that the MMU sets in the page table entry.
type clockEvictor struct {
	slots [clockSlots]evictionCandidate
	index map[candidateKey]int
	hand  int
	count int
}

var evictor clockEvictor

// resetEvictor drops every eviction candidate and rewinds the hand.
func resetEvictor() {
	evictor = clockEvictor{}
}

// track registers page of pt as an eviction candidate with its referenced
// bit set. Pages that are already tracked are just marked as referenced. If
// every slot is taken the page is not tracked and can never be evicted.
func (c *clockEvictor) track(pt *PageTable, page mm.Page) {
	if c.index == nil {
		c.index = make(map[candidateKey]int)
	}

	key := candidateKey{pt, page}
	if slot, ok := c.index[key]; ok {
		c.slots[slot].used = true
		return
	}

	if c.count == clockSlots {
		kfmt.Debugf("vmm", "clock full; page 0x%x is not evictable", page.Address())
		return
	}

	for slot := range c.slots {
		if c.slots[slot].occupied {
			continue
		}

		c.slots[slot] = evictionCandidate{pt: pt, page: page, used: true, occupied: true}
		c.index[key] = slot
		c.count++
		return
	}
}

// untrack removes page of pt from the candidate ring.
func (c *clockEvictor) untrack(pt *PageTable, page mm.Page) {
	key := candidateKey{pt, page}
	slot, ok := c.index[key]
	if !ok {
		return
	}

	delete(c.index, key)
	c.slots[slot] = evictionCandidate{}
	c.count--
}

// untrackTable removes every candidate that belongs to pt.
func (c *clockEvictor) untrackTable(pt *PageTable) {
	for slot := range c.slots {
		if c.slots[slot].occupied && c.slots[slot].pt == pt {
			c.untrack(pt, c.slots[slot].page)
		}
	}
}

// referenced reports whether the candidate was referenced since the hand last
// passed over it and clears its referenced state.
func (c *clockEvictor) referenced(cand *evictionCandidate) bool {
	var pte *pageTableEntry
	if cand.pt != nil {
		pte = cand.pt.presentLeaf(cand.page.Address())
	}

	accessed := pte != nil && pte.HasFlags(pteAccessed)
	if !cand.used && !accessed {
		return false
	}

	cand.used = false
	if pte != nil {
		pte.ClearFlags(pteAccessed)
	}
	return true
}

// selectVictim scans the ring forward from the hand. Referenced candidates
// have their bit cleared and are skipped; the first unreferenced candidate
// is the victim. If a full revolution finds no victim, slot 0 is chosen (or
// the first occupied slot at or after the hand when slot 0 is empty). The
// hand advances by one slot per decision.
func (c *clockEvictor) selectVictim() (int, bool) {
	if c.count == 0 {
		return 0, false
	}

	victim := -1
	for i := 0; i < clockSlots; i++ {
		slot := (c.hand + i) % clockSlots
		cand := &c.slots[slot]
		if !cand.occupied || c.referenced(cand) {
			continue
		}

		victim = slot
		break
	}

	if victim == -1 {
		victim = 0
		for i := 0; !c.slots[victim].occupied && i < clockSlots; i++ {
			victim = (c.hand + i) % clockSlots
		}
	}

	c.hand = (c.hand + 1) % clockSlots
	return victim, true
}

// evictOne reclaims the page selected by the clock: the mapping is removed
// and its frame is returned to the frame allocator. It returns false if
// there are no eviction candidates.
func (c *clockEvictor) evictOne() bool {
	slot, ok := c.selectVictim()
	if !ok {
		return false
	}

	cand := c.slots[slot]
	c.untrack(cand.pt, cand.page)

	vaddr := cand.page.Address()
	pte := cand.pt.presentLeaf(vaddr)
	if pte == nil || !pte.HasFlags(pteAllocated) {
		return true
	}

	frame := pte.Frame()
	*pte = 0
	cand.pt.flushEntry(vaddr)
	if err := freeFrameFn(frame); err != nil {
		kfmt.Errorf("vmm", "unable to release evicted frame 0x%x: %s", frame.Address(), err.Message)
		return true
	}

	kfmt.Warnf("vmm", "out of memory; evicted page 0x%x (frame 0x%x)", vaddr, frame.Address())
	return true
}
