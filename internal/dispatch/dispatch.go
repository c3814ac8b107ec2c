// Package dispatch implements the nearest-available vehicle matching policy
// and the incrementally maintained idle-vehicle set it depends on for its
// O(|unassigned| * |idle|) per-tick cost.
package dispatch

import (
	"sort"

	"github.com/realmfikri/ridehail-sim/internal/citygrid"
	"github.com/realmfikri/ridehail-sim/internal/trip"
	"github.com/realmfikri/ridehail-sim/internal/vehicle"
)

// IdleSet is a first-class, incrementally maintained set of P1 vehicle ids.
// Recomputing it from scratch each tick was the dominant cost the source
// profiled away; callers must add/remove on every phase transition instead.
type IdleSet struct {
	ids map[int]struct{}
}

// NewIdleSet builds the set from the vehicles currently in P1.
func NewIdleSet(vehicles []*vehicle.Vehicle) *IdleSet {
	s := &IdleSet{ids: make(map[int]struct{}, len(vehicles))}
	for _, v := range vehicles {
		if v.Phase == vehicle.P1 {
			s.ids[v.ID] = struct{}{}
		}
	}
	return s
}

// Add marks id idle.
func (s *IdleSet) Add(id int) { s.ids[id] = struct{}{} }

// Remove marks id no longer idle.
func (s *IdleSet) Remove(id int) { delete(s.ids, id) }

// Len returns the number of idle vehicles.
func (s *IdleSet) Len() int { return len(s.ids) }

// IDs returns a snapshot slice of currently idle vehicle ids, sorted for
// deterministic iteration order.
func (s *IdleSet) IDs() []int {
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Result summarizes one tick's dispatch outcomes.
type Result struct {
	Matched         int
	ForwardDispatch int
}

// Dispatcher matches UNASSIGNED trips to idle vehicles each block.
type Dispatcher struct {
	city *citygrid.City
}

// New constructs a Dispatcher bound to a city's geometry.
func New(city *citygrid.City) *Dispatcher {
	return &Dispatcher{city: city}
}

// Dispatch scans unassignedTrips (already filtered to phase UNASSIGNED, in
// request order) against idle, matching each to its nearest idle vehicle by
// travel distance and binding both sides. Vehicles and trips are maps keyed
// by id; idle is mutated to reflect the vehicles consumed this tick.
func (d *Dispatcher) Dispatch(
	unassignedTrips []*trip.Trip,
	idle *IdleSet,
	vehicles map[int]*vehicle.Vehicle,
	block int,
) Result {
	var res Result
	for _, t := range unassignedTrips {
		candidateIDs := idle.IDs()
		if len(candidateIDs) == 0 {
			break
		}
		bestID := -1
		bestDist := -1
		for _, id := range candidateIDs {
			v := vehicles[id]
			dist := d.city.TravelDistance(v.Location, v.Direction, t.Origin)
			if bestID == -1 || dist < bestDist || (dist == bestDist && id < bestID) {
				bestID = id
				bestDist = dist
			}
		}
		if bestID == -1 {
			continue
		}
		v := vehicles[bestID]
		if d.isForwardDispatch(v, t.Origin) {
			res.ForwardDispatch++
		}
		v.Dispatch(t.ID)
		t.Assign(v.ID, block)
		idle.Remove(bestID)
		res.Matched++
	}
	return res
}

// isForwardDispatch reports whether v's current heading already reduces
// distance to origin, i.e. it is already moving toward the new trip without
// needing to change direction.
func (d *Dispatcher) isForwardDispatch(v *vehicle.Vehicle, origin citygrid.Location) bool {
	base := d.city.Distance(v.Location, origin)
	next := d.city.StepForward(v.Location, v.Direction)
	return d.city.Distance(next, origin) < base
}
