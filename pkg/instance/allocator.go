package instance

import (
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Entry is one active instance and the time it was activated.
type Entry struct {
	ID        signal.InstanceID
	Activated time.Time
}

// ChooseVictim returns the instance to release under policy.
//
// StealOldest picks the earliest activation, StealNewest the latest. Ties on
// the activation time go to the lower instance id. StealNone, and an empty
// active set, return false.
func ChooseVictim(active []Entry, policy signal.StealPolicy) (signal.InstanceID, bool) {
	if policy == signal.StealNone {
		return 0, false
	}

	best := -1
	for i, e := range active {
		if best == -1 {
			best = i
			continue
		}
		b := active[best]
		switch policy {
		case signal.StealOldest:
			if e.Activated.Before(b.Activated) || (e.Activated.Equal(b.Activated) && e.ID < b.ID) {
				best = i
			}
		case signal.StealNewest:
			if e.Activated.After(b.Activated) || (e.Activated.Equal(b.Activated) && e.ID < b.ID) {
				best = i
			}
		}
	}

	if best == -1 {
		return 0, false
	}
	return active[best].ID, true
}
