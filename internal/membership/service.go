package membership

import (
	"time"
)

// Service bundles the four membership components over one store.
type Service struct {
	Plans       *PlanCatalog
	Memberships *Lifecycle
	Benefits    *BenefitEngine
	Analytics   *Aggregator
}

// New wires the components. A nil clock uses time.Now; a nil recorder drops observations.
func New(st Store, now func() time.Time, recorder Recorder) *Service {
	if now == nil {
		now = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	clock := func() time.Time { return now().UTC() }

	catalog := &PlanCatalog{store: st, now: clock, recorder: recorder}
	return &Service{
		Plans:       catalog,
		Memberships: &Lifecycle{store: st, plans: catalog, now: clock, recorder: recorder},
		Benefits:    &BenefitEngine{store: st, now: clock, recorder: recorder},
		Analytics:   &Aggregator{store: st, now: clock},
	}
}
