package engine

import (
	"sort"

	"github.com/realmfikri/ridehail-sim/internal/citygrid"
	"github.com/realmfikri/ridehail-sim/internal/history"
	"github.com/realmfikri/ridehail-sim/internal/vehicle"
)

// VehicleView is a read-only snapshot of one vehicle, suitable for map
// rendering by an observer collaborator.
type VehicleView struct {
	ID        int
	Phase     string
	Location  citygrid.Location
	Direction string
}

// TripView is a read-only snapshot of one non-terminal trip.
type TripView struct {
	ID          int
	Phase       string
	Origin      citygrid.Location
	Destination citygrid.Location
	Distance    int
}

// BlockResult is the snapshot NextBlock returns: the block index, vehicle
// and trip views, and the most recent smoothed history row. Consumers may
// copy it freely but must not mutate the engine through it — it holds no
// pointers back into engine state.
type BlockResult struct {
	RunID string
	Block int

	Vehicles []VehicleView
	Trips    []TripView

	History map[history.Metric]float64
}

func (e *Engine) snapshot() BlockResult {
	vehicles := make([]VehicleView, 0, len(e.vehicles))
	ids := make([]int, 0, len(e.vehicles))
	for id := range e.vehicles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		v := e.vehicles[id]
		vehicles = append(vehicles, VehicleView{
			ID:        v.ID,
			Phase:     phaseName(v.Phase),
			Location:  v.Location,
			Direction: v.Direction.String(),
		})
	}

	tripIDs := make([]int, 0, len(e.trips))
	for id, t := range e.trips {
		if t.Active() {
			tripIDs = append(tripIDs, id)
		}
	}
	sort.Ints(tripIDs)
	trips := make([]TripView, 0, len(tripIDs))
	for _, id := range tripIDs {
		t := e.trips[id]
		trips = append(trips, TripView{
			ID:          t.ID,
			Phase:       t.Phase.String(),
			Origin:      t.Origin,
			Destination: t.Destination,
			Distance:    t.Distance,
		})
	}

	return BlockResult{
		RunID:    e.RunID,
		Block:    e.block,
		Vehicles: vehicles,
		Trips:    trips,
		History:  e.hist.RollingRow(),
	}
}

func phaseName(p vehicle.Phase) string {
	return p.String()
}
