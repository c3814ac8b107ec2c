package observe

import (
	"context"
	"time"

	"github.com/realmfikri/ridehail-sim/engine"
)

// Runner drives an Engine's tick loop, optionally pacing it to wall clock
// (for a live animation consumer) and publishing snapshots to a Hub every
// animate_update_period blocks, exactly as §4.7 step 8 specifies. Without
// pacing it runs as fast as possible, which is how a terminal/batch run
// (`animate = false`) uses it. The sequence runner does not use Runner; it
// calls NextBlock directly.
type Runner struct {
	Engine              *engine.Engine
	Hub                 *Hub
	Recorder            *PrometheusRecorder
	TimeBlocks          int
	AnimateUpdatePeriod int
	Paced               bool
	TickInterval        time.Duration
}

// Run advances the engine for TimeBlocks blocks (or until ctx is
// cancelled), publishing to Hub every AnimateUpdatePeriod blocks, and
// returns the final terminal results.
func (r *Runner) Run(ctx context.Context) engine.Results {
	period := r.AnimateUpdatePeriod
	if period <= 0 {
		period = 1
	}
	ticker := newPacer(r.Paced, r.TickInterval)
	defer ticker.Stop()

	for block := 0; r.TimeBlocks <= 0 || block < r.TimeBlocks; block++ {
		select {
		case <-ctx.Done():
			break
		default:
		}
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		br := r.Engine.NextBlock()
		if r.Recorder != nil {
			r.Recorder.ObserveTickLatency(time.Since(start).Seconds())
		}

		if r.Hub != nil && br.Block%period == 0 {
			r.Hub.Publish(br)
		}

		if r.Paced {
			ticker.Wait(ctx)
		}
	}

	results := r.Engine.ComputeEndState()
	if r.Hub != nil {
		r.Hub.SetResults(results)
	}
	return results
}

// pacer is a tiny wrapper so Run doesn't branch on Paced at every call
// site; an unpaced pacer's Wait returns immediately.
type pacer struct {
	paced bool
	t     *time.Ticker
}

func newPacer(paced bool, interval time.Duration) *pacer {
	if !paced || interval <= 0 {
		return &pacer{}
	}
	return &pacer{paced: true, t: time.NewTicker(interval)}
}

func (p *pacer) Wait(ctx context.Context) {
	if !p.paced {
		return
	}
	select {
	case <-p.t.C:
	case <-ctx.Done():
	}
}

func (p *pacer) Stop() {
	if p.t != nil {
		p.t.Stop()
	}
}
