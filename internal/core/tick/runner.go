package tick

import (
	"sort"
	"time"
)

// Runner executes stages in phase order each tick. Stages sharing a phase
// run in registration order.
type Runner struct {
	stages []Stage
	sorted bool
	ticks  uint64
}

func NewRunner() *Runner {
	return &Runner{
		stages: make([]Stage, 0, 8),
	}
}

func (r *Runner) Register(s Stage) {
	r.stages = append(r.stages, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.stages {
		s.Run(dt)
	}
	r.ticks++
}

// TickPhase runs only the stages of one phase. Used to flush finalize and
// persist on shutdown without broadcasting another round.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.stages {
		if s.Phase() == phase {
			s.Run(dt)
		}
	}
}

// Ticks is the number of completed Tick calls.
func (r *Runner) Ticks() uint64 { return r.ticks }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.stages, func(i, j int) bool {
			return r.stages[i].Phase() < r.stages[j].Phase()
		})
		r.sorted = true
	}
}
