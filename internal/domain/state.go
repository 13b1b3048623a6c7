package domain

// Phase is a display label derived from an ElementState.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePendingPrecache Phase = "pending_precache"
	PhasePrecaching      Phase = "precaching"
	PhasePreCached       Phase = "precached"
	PhaseRendered        Phase = "rendered"
	PhaseLoading         Phase = "loading"
	PhaseLoaded          Phase = "loaded"
)

// ElementState is the per-element flag record. It is owned by a single
// element controller and never shared.
//
// Loaded implies !Loading. Rendered only goes back to false when the whole
// record is reset by a source change.
type ElementState struct {
	Rendered   bool `json:"rendered"`
	Loading    bool `json:"loading"`
	Loaded     bool `json:"loaded"`
	PreCaching bool `json:"precaching"`
	PreCached  bool `json:"precached"`

	// Priority is set when the current load incremented the priority counter.
	Priority bool `json:"priority"`
}

// Phase returns the most advanced stage the flags describe. Watching reports
// whether the element is still registered for visibility/prefetch.
func (s ElementState) Phase(watching bool) Phase {
	switch {
	case s.Loaded:
		return PhaseLoaded
	case s.Loading:
		return PhaseLoading
	case s.Rendered:
		return PhaseRendered
	case s.PreCached:
		return PhasePreCached
	case s.PreCaching:
		return PhasePrecaching
	case watching:
		return PhasePendingPrecache
	default:
		return PhaseIdle
	}
}
