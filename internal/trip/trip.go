// Package trip implements the request-lifecycle record: a trip's phase
// machine and the block-timestamped checkpoints derived metrics are computed
// from.
package trip

import "github.com/realmfikri/ridehail-sim/internal/citygrid"

// Phase is the lifecycle stage of a trip. Phases only ever move forward.
type Phase int

const (
	Inactive Phase = iota
	Unassigned
	Waiting
	Riding
	Completed
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Inactive:
		return "INACTIVE"
	case Unassigned:
		return "UNASSIGNED"
	case Waiting:
		return "WAITING"
	case Riding:
		return "RIDING"
	case Completed:
		return "COMPLETED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Trip is a single ride request. Distance is fixed at creation time; all
// other fields besides Phase, VehicleID and the block checkpoints are
// immutable.
type Trip struct {
	ID          int
	Origin      citygrid.Location
	Destination citygrid.Location
	Distance    int
	Phase       Phase

	VehicleID int // bound vehicle, valid only while Phase is Waiting or Riding

	BlockRequested  int
	BlockAssigned   int
	BlockPickedUp   int
	BlockDroppedOff int
}

// New creates an UNASSIGNED trip requested at the given block.
func New(id int, origin, destination citygrid.Location, distance, block int) *Trip {
	return &Trip{
		ID:             id,
		Origin:         origin,
		Destination:    destination,
		Distance:       distance,
		Phase:          Unassigned,
		BlockRequested: block,
	}
}

// Assign transitions UNASSIGNED -> WAITING, binding vehicleID.
func (t *Trip) Assign(vehicleID, block int) {
	t.VehicleID = vehicleID
	t.Phase = Waiting
	t.BlockAssigned = block
}

// PickUp transitions WAITING -> RIDING.
func (t *Trip) PickUp(block int) {
	t.Phase = Riding
	t.BlockPickedUp = block
}

// DropOff transitions RIDING -> COMPLETED and clears the vehicle binding.
func (t *Trip) DropOff(block int) {
	t.Phase = Completed
	t.BlockDroppedOff = block
	t.VehicleID = 0
}

// Cancel transitions any non-terminal phase to CANCELLED. No baseline policy
// path calls this (see the CANCELLED trip phase decision in DESIGN.md).
func (t *Trip) Cancel(block int) {
	if t.Phase == Completed || t.Phase == Cancelled {
		return
	}
	t.Phase = Cancelled
	t.BlockDroppedOff = block
	t.VehicleID = 0
}

// Active reports whether the trip is still tracked by the simulation (not in
// a terminal phase).
func (t *Trip) Active() bool {
	return t.Phase != Completed && t.Phase != Cancelled
}

// WaitTime is the full wait from request to pickup.
func (t *Trip) WaitTime() int { return t.BlockPickedUp - t.BlockRequested }

// UnassignedTime is the time spent UNASSIGNED before a vehicle was bound.
func (t *Trip) UnassignedTime() int { return t.BlockAssigned - t.BlockRequested }

// AwaitingTime is the en-route wait: time bound but not yet picked up.
func (t *Trip) AwaitingTime() int { return t.BlockPickedUp - t.BlockAssigned }

// RidingTime is time spent RIDING, equal to Distance in a block-stepped
// model where one block advances one grid edge.
func (t *Trip) RidingTime() int { return t.BlockDroppedOff - t.BlockPickedUp }
