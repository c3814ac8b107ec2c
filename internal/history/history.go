// Package history implements the per-block statistics aggregator: a
// fixed-schema ring of counters, rolling windows for animation and results,
// and the steady-state validation identities.
package history

import "math"

// Row is one block's worth of raw counters, as computed by the simulation
// before it is folded into the rolling history.
type Row struct {
	VehicleCount            int
	VehicleTimeP1            int
	VehicleTimeP2            int
	VehicleTimeP3            int
	TripCount                int
	TripRequestRate          float64
	TripCompletedCount       int
	TripAwaitingTimeSum      float64
	TripUnassignedTimeSum    float64
	TripRidingTimeSum        float64
	TripDistanceSum          float64
	TripPriceSum             float64
	TripForwardDispatchCount int
}

// History accumulates blocks into fixed-capacity rolling windows and
// exposes smoothing-window and results-window aggregates.
type History struct {
	smoothingWindow int
	resultsWindow   int
	rings           map[Metric]*ring
	block           int

	prevFractionsSet bool
	prevP1, prevP2, prevP3 float64
	lastConvergence  float64
}

// New builds a History sized to hold at least max(smoothingWindow,
// resultsWindow) trailing blocks.
func New(smoothingWindow, resultsWindow int) *History {
	capacity := smoothingWindow
	if resultsWindow > capacity {
		capacity = resultsWindow
	}
	h := &History{
		smoothingWindow: smoothingWindow,
		resultsWindow:   resultsWindow,
		rings:           make(map[Metric]*ring, len(AllMetrics)),
	}
	for _, m := range AllMetrics {
		h.rings[m] = newRing(capacity)
	}
	return h
}

// Record folds one block's row into the history, advancing the block
// counter and the convergence residual.
func (h *History) Record(row Row) {
	h.block++
	vehicleTime := row.VehicleTimeP1 + row.VehicleTimeP2 + row.VehicleTimeP3

	h.rings[VehicleCount].push(float64(row.VehicleCount))
	h.rings[VehicleTime].push(float64(vehicleTime))
	h.rings[VehicleTimeP1].push(float64(row.VehicleTimeP1))
	h.rings[VehicleTimeP2].push(float64(row.VehicleTimeP2))
	h.rings[VehicleTimeP3].push(float64(row.VehicleTimeP3))
	h.rings[TripCount].push(float64(row.TripCount))
	h.rings[TripRequestRate].push(row.TripRequestRate)
	h.rings[TripCompletedCount].push(float64(row.TripCompletedCount))
	h.rings[TripAwaitingTime].push(row.TripAwaitingTimeSum)
	h.rings[TripUnassignedTime].push(row.TripUnassignedTimeSum)
	h.rings[TripRidingTime].push(row.TripRidingTimeSum)
	h.rings[TripDistance].push(row.TripDistanceSum)
	h.rings[TripPrice].push(row.TripPriceSum)
	h.rings[TripForwardDispatchCount].push(float64(row.TripForwardDispatchCount))

	h.updateConvergence()
	h.rings[ConvergenceMaxRMSResidual].push(h.lastConvergence)
}

// updateConvergence recomputes the RMS residual of the three phase
// fractions between this block's smoothing-window average and the previous
// block's.
func (h *History) updateConvergence() {
	n := h.smoothingWindow
	vt := h.rings[VehicleTime].windowAverage(n)
	if vt == 0 {
		h.lastConvergence = 0
		return
	}
	p1 := h.rings[VehicleTimeP1].windowAverage(n) / vt
	p2 := h.rings[VehicleTimeP2].windowAverage(n) / vt
	p3 := h.rings[VehicleTimeP3].windowAverage(n) / vt

	if !h.prevFractionsSet {
		h.prevP1, h.prevP2, h.prevP3 = p1, p2, p3
		h.prevFractionsSet = true
		h.lastConvergence = 0
		return
	}
	d1 := p1 - h.prevP1
	d2 := p2 - h.prevP2
	d3 := p3 - h.prevP3
	h.lastConvergence = math.Sqrt((d1*d1 + d2*d2 + d3*d3) / 3)
	h.prevP1, h.prevP2, h.prevP3 = p1, p2, p3
}

// Block returns the number of blocks recorded so far.
func (h *History) Block() int { return h.block }

// RollingRow returns the smoothing-window average of every metric, for
// animation consumers.
func (h *History) RollingRow() map[Metric]float64 {
	return h.windowRow(h.smoothingWindow)
}

// ResultsRow returns the results-window average of every metric, for
// terminal statistics.
func (h *History) ResultsRow() map[Metric]float64 {
	return h.windowRow(h.resultsWindow)
}

func (h *History) windowRow(n int) map[Metric]float64 {
	out := make(map[Metric]float64, len(AllMetrics))
	for _, m := range AllMetrics {
		out[m] = h.rings[m].windowAverage(n)
	}
	return out
}

// Identities holds the §4.5 validation identities computed over the
// results window.
type Identities struct {
	PhaseSum             float64 // should be ~1
	LittlesLawP3Residual float64 // N*P3 - R*meanRidingTime, relative
	LittlesLawP2Residual float64 // N*P2 - R*meanAwaitingTime, relative
}

// ComputeIdentities evaluates the Little's Law and phase-partition
// identities over the results window.
func (h *History) ComputeIdentities() Identities {
	n := h.resultsWindow
	vt := h.rings[VehicleTime].windowAverage(n)
	var p1, p2, p3 float64
	if vt > 0 {
		p1 = h.rings[VehicleTimeP1].windowAverage(n) / vt
		p2 = h.rings[VehicleTimeP2].windowAverage(n) / vt
		p3 = h.rings[VehicleTimeP3].windowAverage(n) / vt
	}
	vehicleCount := h.rings[VehicleCount].windowAverage(n)
	requestRate := h.rings[TripRequestRate].windowAverage(n)
	completed := h.rings[TripCompletedCount].windowSum(n)

	var meanRiding, meanAwaiting float64
	if completed > 0 {
		meanRiding = h.rings[TripRidingTime].windowSum(n) / completed
		meanAwaiting = h.rings[TripAwaitingTime].windowSum(n) / completed
	}

	idents := Identities{PhaseSum: p1 + p2 + p3}

	expectedP3 := requestRate * meanRiding
	actualP3 := vehicleCount * p3
	if expectedP3 != 0 {
		idents.LittlesLawP3Residual = (actualP3 - expectedP3) / expectedP3
	}

	expectedP2 := requestRate * meanAwaiting
	actualP2 := vehicleCount * p2
	if expectedP2 != 0 {
		idents.LittlesLawP2Residual = (actualP2 - expectedP2) / expectedP2
	}

	return idents
}

// phaseFractions returns the P1/P2/P3 fractions averaged over the trailing n
// blocks.
func (h *History) phaseFractions(n int) (p1, p2, p3 float64) {
	vt := h.rings[VehicleTime].windowAverage(n)
	if vt == 0 {
		return 0, 0, 0
	}
	return h.rings[VehicleTimeP1].windowAverage(n) / vt,
		h.rings[VehicleTimeP2].windowAverage(n) / vt,
		h.rings[VehicleTimeP3].windowAverage(n) / vt
}

// PhaseFractions returns the results-window P1/P2/P3 fractions, for terminal
// statistics (§4.5, §6.3).
func (h *History) PhaseFractions() (p1, p2, p3 float64) {
	return h.phaseFractions(h.resultsWindow)
}

// RollingPhaseFractions returns the smoothing-window P1/P2/P3 fractions —
// the "rolling P3 fraction" §4.6 equilibration reads driver utility from.
func (h *History) RollingPhaseFractions() (p1, p2, p3 float64) {
	return h.phaseFractions(h.smoothingWindow)
}
