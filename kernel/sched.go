package kernel

// RunQueue is what the scheduler needs to know about the environment
// table. EnvTable implements it; tests hand in fixed snapshots.
type RunQueue interface {
	NumSlots() int
	Runnable(slot int) bool
}

// Scheduler does round-robin selection over table slots. It remembers
// where the last scan stopped so each runnable slot gets its turn in slot
// order.
type Scheduler struct {
	next int
}

// Pick scans one full circuit starting at the slot after the last one
// picked and returns the first runnable slot. The scan position moves past
// the chosen slot before it is returned.
func (s *Scheduler) Pick(rq RunQueue) (int, bool) {
	n := rq.NumSlots()
	if n == 0 {
		return 0, false
	}

	for i := 0; i < n; i++ {
		slot := (s.next + i) % n
		if rq.Runnable(slot) {
			s.next = (slot + 1) % n
			return slot, true
		}
	}

	return 0, false
}

// Next is the slot the following scan will start at.
func (s *Scheduler) Next() int {
	return s.next
}
