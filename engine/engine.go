// Package engine implements the block-stepped tick driver (§4.7 of the
// design): it owns the city, the vehicle and trip populations, and
// composes dispatch, movement, history, and equilibration into a single
// deterministic `NextBlock` step.
package engine

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/realmfikri/ridehail-sim/internal/citygrid"
	"github.com/realmfikri/ridehail-sim/internal/dispatch"
	"github.com/realmfikri/ridehail-sim/internal/equilibrate"
	"github.com/realmfikri/ridehail-sim/internal/history"
	"github.com/realmfikri/ridehail-sim/internal/simconfig"
	"github.com/realmfikri/ridehail-sim/internal/trip"
	"github.com/realmfikri/ridehail-sim/internal/vehicle"
)

// Recorder is the optional metrics sink the engine reports tick-level
// observability through. Implementations must not block or error the
// engine; observe.PrometheusRecorder is the production implementation.
type Recorder interface {
	ObserveTick(block int, vehiclesByPhase map[vehicle.Phase]int, tripsCompleted, forwardDispatch int)
	ObserveEquilibration(vehicleDelta int, requestRate float64)
}

// noopRecorder discards everything; used when no Recorder is configured.
type noopRecorder struct{}

func (noopRecorder) ObserveTick(int, map[vehicle.Phase]int, int, int) {}
func (noopRecorder) ObserveEquilibration(int, float64)                {}

// Engine owns all simulation state exclusively; Dispatcher, History, and
// the equilibrator only ever see references during the tick that uses
// them.
type Engine struct {
	RunID string

	city *citygrid.City
	rng  *rand.Rand

	cfg simconfig.Config

	vehicles map[int]*vehicle.Vehicle
	trips    map[int]*trip.Trip

	nextVehicleID int
	nextTripID    int

	unassignedOrder []int // trip ids in request order, pending dispatch

	idle       *dispatch.IdleSet
	dispatcher *dispatch.Dispatcher
	hist       *history.History

	block int

	geometryWarned   bool
	geometryFailures int

	recorder Recorder

	// pending holds UpdateOptions/impulse overrides applied at the next
	// block boundary; the UI collaborator may call UpdateOptions from a
	// different goroutine than the one driving NextBlock.
	mu      sync.Mutex
	pending []func(*simconfig.Config)
}

// New constructs an Engine from a validated configuration.
func New(cfg simconfig.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ResolveCityScale()

	city, err := citygrid.NewCity(
		cfg.Default.CitySize,
		cfg.Default.TripInhomogeneity,
		cfg.Default.MinTripDistance,
		cfg.Default.MaxTripDistance,
		cfg.Default.IdleVehiclesMoving,
	)
	if err != nil {
		return nil, err
	}

	seed := cfg.Default.RandomNumberSeed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	e := &Engine{
		RunID:      uuid.NewString(),
		city:       city,
		rng:        rng,
		cfg:        cfg,
		vehicles:   make(map[int]*vehicle.Vehicle),
		trips:      make(map[int]*trip.Trip),
		dispatcher: dispatch.New(city),
		hist:       history.New(cfg.Animation.SmoothingWindow, cfg.Default.ResultsWindow),
		recorder:   noopRecorder{},
	}

	for i := 0; i < cfg.Default.VehicleCount; i++ {
		e.addVehicle()
	}
	e.idle = dispatch.NewIdleSet(e.vehicleSlice())

	return e, nil
}

// WithRecorder attaches a metrics Recorder, following the teacher's
// functional-option `With*` pattern.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

func (e *Engine) vehicleSlice() []*vehicle.Vehicle {
	out := make([]*vehicle.Vehicle, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		out = append(out, v)
	}
	return out
}

// sortedVehicleIDs returns every vehicle id in ascending order. Anything
// that advances the shared RNG per vehicle (direction choice) must iterate
// in this fixed order rather than ranging the map directly, or the RNG
// sub-stream's consumption order becomes map-iteration-order dependent and
// determinism (§5, §9) breaks across runs.
func (e *Engine) sortedVehicleIDs() []int {
	ids := make([]int, 0, len(e.vehicles))
	for id := range e.vehicles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (e *Engine) addVehicle() *vehicle.Vehicle {
	e.nextVehicleID++
	loc := e.city.RandomLocation(e.rng, true)
	v := vehicle.New(e.nextVehicleID, loc, e.rng)
	e.vehicles[v.ID] = v
	return v
}

// Block returns the last block index completed by NextBlock.
func (e *Engine) Block() int { return e.block }

// Config returns a copy of the engine's current live configuration.
func (e *Engine) Config() simconfig.Config { return e.cfg }

// UpdateOptions is the subset of configuration the UI collaborator may
// change live, applied at the next block boundary (§4.7).
type UpdateOptions struct {
	VehicleCount    *int
	RequestRate     *float64
	Price           *float64
	Commission      *float64
	ReservationWage *float64
	SmoothingWindow *int
}

// UpdateOptions enqueues a live reconfiguration; it takes effect at the
// start of the next NextBlock call, never mid-tick.
func (e *Engine) UpdateOptions(opts UpdateOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, func(cfg *simconfig.Config) {
		if opts.VehicleCount != nil {
			cfg.Default.VehicleCount = *opts.VehicleCount
		}
		if opts.RequestRate != nil {
			cfg.Default.BaseDemand = *opts.RequestRate
		}
		if opts.Price != nil {
			cfg.Equilibration.Price = *opts.Price
		}
		if opts.Commission != nil {
			cfg.Equilibration.PlatformCommission = *opts.Commission
		}
		if opts.ReservationWage != nil {
			cfg.Equilibration.ReservationWage = *opts.ReservationWage
		}
		if opts.SmoothingWindow != nil {
			cfg.Animation.SmoothingWindow = *opts.SmoothingWindow
		}
	})
}

// applyPending drains queued UpdateOptions calls and this block's impulse,
// in that order, exactly at the block boundary (step 1 of §4.7).
func (e *Engine) applyPending() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range pending {
		fn(&e.cfg)
	}
	e.applyImpulse(e.block + 1)
}

func (e *Engine) applyImpulse(block int) {
	for _, impulse := range e.cfg.Impulses {
		if impulse.Block != block {
			continue
		}
		for k, v := range impulse.Fields {
			_ = e.cfg.ApplyOverride(k, v)
		}
	}
}

// NextBlock advances the simulation by exactly one block and returns a
// read-only snapshot of the resulting state. The step order matches §4.7:
// impulses, demand, dispatch, movement, phase transitions, history,
// equilibration, snapshot.
func (e *Engine) NextBlock() BlockResult {
	e.applyPending()
	e.block++

	requestRate := e.equilibratedDemand()
	newTrips := e.sampleDemand(requestRate)

	unassigned := e.collectUnassigned()
	dispatchResult := e.dispatcher.Dispatch(unassigned, e.idle, e.vehicles, e.block)

	var completedThisBlock []*trip.Trip
	for _, id := range e.sortedVehicleIDs() {
		v := e.vehicles[id]
		var target citygrid.Location
		hasTarget := false
		if v.Phase == vehicle.P2 || v.Phase == vehicle.P3 {
			t := e.trips[v.TripID]
			if t != nil {
				hasTarget = true
				if v.Phase == vehicle.P2 {
					target = t.Origin
				} else {
					target = t.Destination
				}
			}
		}
		if hasTarget {
			v.UpdateDirection(e.city, target, e.rng)
		} else {
			v.UpdateDirection(e.city, v.Location, e.rng)
		}
		v.UpdateLocation(e.city)

		if v.Phase == vehicle.P2 {
			t := e.trips[v.TripID]
			if t != nil && v.Location == t.Origin {
				v.ArriveAtOrigin()
				t.PickUp(e.block)
			}
		} else if v.Phase == vehicle.P3 {
			t := e.trips[v.TripID]
			if t != nil && v.Location == t.Destination {
				t.DropOff(e.block)
				v.CompleteTrip()
				e.idle.Add(v.ID)
				completedThisBlock = append(completedThisBlock, t)
			}
		}
	}

	row := e.buildRow(requestRate, dispatchResult, completedThisBlock)
	e.hist.Record(row)
	e.pruneCompletedTrips()

	if e.cfg.Default.Equilibrate && e.cfg.Equilibration.EquilibrationInterval > 0 &&
		e.block%e.cfg.Equilibration.EquilibrationInterval == 0 {
		e.runEquilibration()
	}

	e.reportMetrics(len(newTrips), dispatchResult.ForwardDispatch)

	return e.snapshot()
}

func (e *Engine) reportMetrics(tripsCreated, forwardDispatch int) {
	byPhase := map[vehicle.Phase]int{}
	for _, v := range e.vehicles {
		byPhase[v.Phase]++
	}
	completed := 0
	for _, t := range e.trips {
		if t.Phase == trip.Completed && t.BlockDroppedOff == e.block {
			completed++
		}
	}
	e.recorder.ObserveTick(e.block, byPhase, completed, forwardDispatch)
}

// collectUnassigned returns trips currently UNASSIGNED, in request order,
// and compacts the backing order slice to drop settled entries so its
// length stays bounded by the true unassigned count.
func (e *Engine) collectUnassigned() []*trip.Trip {
	out := make([]*trip.Trip, 0, len(e.unassignedOrder))
	kept := e.unassignedOrder[:0]
	for _, id := range e.unassignedOrder {
		t, ok := e.trips[id]
		if !ok || t.Phase != trip.Unassigned {
			continue
		}
		out = append(out, t)
		kept = append(kept, id)
	}
	e.unassignedOrder = kept
	return out
}

// pruneCompletedTrips drops terminal trips from the owning map once their
// block has been folded into history, bounding memory for long runs.
func (e *Engine) pruneCompletedTrips() {
	for id, t := range e.trips {
		if !t.Active() && t.BlockDroppedOff < e.block {
			delete(e.trips, id)
		}
	}
}

func (e *Engine) buildRow(requestRate float64, dr dispatch.Result, completed []*trip.Trip) history.Row {
	row := history.Row{
		VehicleCount:             len(e.vehicles),
		TripRequestRate:          requestRate,
		TripForwardDispatchCount: dr.ForwardDispatch,
	}
	for _, v := range e.vehicles {
		switch v.Phase {
		case vehicle.P1:
			row.VehicleTimeP1++
		case vehicle.P2:
			row.VehicleTimeP2++
		case vehicle.P3:
			row.VehicleTimeP3++
		}
	}
	active := 0
	for _, t := range e.trips {
		if t.Active() {
			active++
		}
	}
	row.TripCount = active

	price := e.cfg.Equilibration.Price
	for _, t := range completed {
		row.TripCompletedCount++
		row.TripAwaitingTimeSum += float64(t.AwaitingTime())
		row.TripUnassignedTimeSum += float64(t.UnassignedTime())
		row.TripRidingTimeSum += float64(t.RidingTime())
		row.TripDistanceSum += float64(t.Distance)
		row.TripPriceSum += price * float64(t.Distance)
	}
	return row
}

func (e *Engine) equilibratedDemand() float64 {
	if !e.cfg.Default.Equilibrate || e.cfg.Equilibration.Equilibration != equilibrate.ModePrice {
		return e.cfg.Default.BaseDemand
	}
	eq := e.equilibrateConfig()
	return eq.EffectiveDemand()
}

func (e *Engine) equilibrateConfig() equilibrate.Config {
	mode := equilibrate.ModeNone
	if e.cfg.Equilibration.Equilibration == "price" {
		mode = equilibrate.ModePrice
	}
	return equilibrate.Config{
		Mode:                  mode,
		Price:                 e.cfg.Equilibration.Price,
		PlatformCommission:    e.cfg.Equilibration.PlatformCommission,
		ReservationWage:       e.cfg.Equilibration.ReservationWage,
		DemandElasticity:      e.cfg.Equilibration.DemandElasticity,
		EquilibrationInterval: e.cfg.Equilibration.EquilibrationInterval,
		BaseDemand:            e.cfg.Default.BaseDemand,
		DampingFactor:         0.2,
		SupplyEpsilon:         0.01,
	}
}

const maxRejectionTries = 100

// sampleDemand draws a Poisson count of new requests with mean
// requestRate, creating each via rejection-sampled origin/destination
// pairs that satisfy the configured trip-distance bounds.
func (e *Engine) sampleDemand(requestRate float64) []*trip.Trip {
	count := poisson(e.rng, requestRate)
	created := make([]*trip.Trip, 0, count)
	for i := 0; i < count; i++ {
		t, ok := e.tryCreateTrip()
		if !ok {
			e.geometryFailures++
			if !e.geometryWarned {
				e.geometryWarned = true
				slog.Warn("engine: no origin/destination pair satisfied the trip-distance bounds; request dropped",
					"block", e.block, "tries", maxRejectionTries)
			}
			continue
		}
		created = append(created, t)
	}
	return created
}

func (e *Engine) tryCreateTrip() (*trip.Trip, bool) {
	min := e.city.MinTripDistance
	max := e.city.EffectiveMaxTripDistance()
	destBias := e.cfg.Default.TripInhomogeneousDestinations

	for attempt := 0; attempt < maxRejectionTries; attempt++ {
		origin := e.city.RandomLocation(e.rng, true)
		destination := e.city.RandomLocation(e.rng, destBias)
		dist := e.city.Distance(origin, destination)
		if dist > 0 && dist >= min && dist <= max {
			e.nextTripID++
			t := trip.New(e.nextTripID, origin, destination, dist, e.block)
			e.trips[t.ID] = t
			e.unassignedOrder = append(e.unassignedOrder, t.ID)
			return t, true
		}
	}
	return nil, false
}

// GeometryFailures returns the number of rejection-sampling give-ups since
// the engine started (§7 degraded, non-fatal path).
func (e *Engine) GeometryFailures() int { return e.geometryFailures }

func (e *Engine) runEquilibration() {
	eq := e.equilibrateConfig()
	if err := eq.Validate(); err != nil {
		return
	}

	delta := 0
	if eq.Mode == equilibrate.ModePrice {
		_, _, p3 := e.hist.RollingPhaseFractions()
		utility := eq.Utility(p3)
		delta = eq.SupplyAdjustment(utility, len(e.vehicles))
		e.adjustSupply(delta)
	}

	e.recorder.ObserveEquilibration(delta, e.equilibratedDemand())
}

// adjustSupply adds or removes vehicles, never dropping below 1 and never
// removing a vehicle in P2/P3 (§4.6, §3, §9) — removal saturates at the
// idle count instead of touching a busy vehicle.
func (e *Engine) adjustSupply(delta int) {
	if delta > 0 {
		for i := 0; i < delta; i++ {
			v := e.addVehicle()
			e.idle.Add(v.ID)
		}
		return
	}
	if delta < 0 {
		toRemove := -delta
		if len(e.vehicles)-toRemove < 1 {
			toRemove = len(e.vehicles) - 1
		}
		ids := e.removalCandidates(toRemove)
		for _, id := range ids {
			e.idle.Remove(id)
			delete(e.vehicles, id)
		}
	}
}

// removalCandidates returns up to n idle (P1) vehicle ids to remove. It
// never returns a P2/P3 vehicle: per §4.6/§3/§9, supply reduction must never
// target a vehicle mid-trip, so the result saturates at the P1 count rather
// than falling through to busy vehicles once P1 is exhausted.
func (e *Engine) removalCandidates(n int) []int {
	var p1 []int
	for id, v := range e.vehicles {
		if v.Phase == vehicle.P1 {
			p1 = append(p1, id)
		}
	}
	sort.Ints(p1)
	if n > len(p1) {
		n = len(p1)
	}
	return p1[:n]
}

// poisson draws a Poisson-distributed sample with the given mean using
// Knuth's algorithm, falling back to a normal approximation for large
// means to avoid an unbounded inner loop.
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	if mean > 30 {
		val := int(math.Round(rng.NormFloat64()*math.Sqrt(mean) + mean))
		if val < 0 {
			return 0
		}
		return val
	}
	l := math.Exp(-mean)
	k := 0
	p := 1.0
	for p > l {
		k++
		p *= rng.Float64()
	}
	return k - 1
}
