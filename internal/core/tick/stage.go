package tick

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseEvents   Phase = iota // 0: deliver last tick's lifecycle events
	PhaseDispatch              // 1: broadcast messages to entities
	PhaseFinalize              // 2: apply queued structural changes
	PhasePersist               // 3: periodic snapshots
)

func (p Phase) String() string {
	switch p {
	case PhaseEvents:
		return "events"
	case PhaseDispatch:
		return "dispatch"
	case PhaseFinalize:
		return "finalize"
	case PhasePersist:
		return "persist"
	default:
		return "unknown"
	}
}

// Stage is one step of the host loop.
type Stage interface {
	Phase() Phase
	Run(dt time.Duration)
}
