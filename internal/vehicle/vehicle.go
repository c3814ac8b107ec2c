// Package vehicle implements the driver agent: position, heading, phase,
// and the per-block movement/direction-choice rules.
package vehicle

import (
	"math/rand"

	"github.com/realmfikri/ridehail-sim/internal/citygrid"
)

// Phase is the driver's operating state.
type Phase int

const (
	P1 Phase = iota // idle / available
	P2              // dispatched / en route to pickup
	P3              // with rider
)

func (p Phase) String() string {
	switch p {
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "UNKNOWN"
	}
}

// Vehicle is a driver agent. TripID is meaningful only while Phase is P2 or
// P3; it is the zero value while idle.
type Vehicle struct {
	ID        int
	Location  citygrid.Location
	Direction citygrid.Direction
	Phase     Phase
	TripID    int
}

// New creates an idle vehicle at loc, facing an initial random direction.
func New(id int, loc citygrid.Location, rng *rand.Rand) *Vehicle {
	return &Vehicle{
		ID:        id,
		Location:  loc,
		Direction: citygrid.Direction(rng.Intn(4)),
		Phase:     P1,
	}
}

// Dispatch transitions P1 -> P2, binding tripID. The caller is responsible
// for the matching trip-side transition.
func (v *Vehicle) Dispatch(tripID int) {
	v.Phase = P2
	v.TripID = tripID
}

// ArriveAtOrigin transitions P2 -> P3 on reaching the bound trip's origin.
func (v *Vehicle) ArriveAtOrigin() {
	v.Phase = P3
}

// CompleteTrip transitions P3 -> P1 on reaching the bound trip's
// destination, clearing the binding.
func (v *Vehicle) CompleteTrip() {
	v.Phase = P1
	v.TripID = 0
}

// UpdateDirection chooses the heading for the next block. In P1 with motion
// enabled, it is uniform among the four headings, excluding the reverse of
// the current heading unless that is the only option (keeps idle wandering
// from degenerating into back-and-forth oscillation). In P2/P3, it picks
// uniformly among headings that do not increase distance to target.
func (v *Vehicle) UpdateDirection(city *citygrid.City, target citygrid.Location, rng *rand.Rand) {
	switch v.Phase {
	case P1:
		if !city.IdleVehiclesMoving {
			return
		}
		candidates := []citygrid.Direction{citygrid.North, citygrid.East, citygrid.South, citygrid.West}
		reverse := v.Direction.Opposite()
		filtered := candidates[:0:0]
		for _, d := range candidates {
			if d != reverse {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) == 0 {
			filtered = candidates
		}
		v.Direction = filtered[rng.Intn(len(filtered))]
	case P2, P3:
		acceptable := city.DirectionsTowards(v.Location, target)
		v.Direction = acceptable[rng.Intn(len(acceptable))]
	}
}

// UpdateLocation advances one block along the current direction. A P1
// vehicle does not move when idle motion is disabled.
func (v *Vehicle) UpdateLocation(city *citygrid.City) {
	if v.Phase == P1 && !city.IdleVehiclesMoving {
		return
	}
	v.Location = city.StepForward(v.Location, v.Direction)
}
