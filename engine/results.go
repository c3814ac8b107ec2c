package engine

import (
	"time"

	"github.com/realmfikri/ridehail-sim/internal/history"
)

// Version is the engine's version string, reported in terminal results.
const Version = "1.0.0"

// Results is the terminal statistics mapping described in §6.3: averages
// over the results window, plus the validation identities and metadata.
type Results struct {
	RunID           string
	Version         string
	Timestamp       time.Time
	BlocksSimulated int
	BlocksAnalyzed  int

	VehicleCount   float64
	P1Fraction     float64
	P2Fraction     float64
	P3Fraction     float64
	RequestRate    float64
	MeanTripDistance float64
	MeanWaitTime     float64
	MeanUnassignedTime float64
	MeanAwaitingTime   float64
	MeanRidingTime     float64
	MeanPrice          float64

	Identities history.Identities

	GeometryFailures int
}

// ComputeEndState averages the trailing results_window blocks and returns
// the validation identities and convergence metric alongside them (§4.7).
func (e *Engine) ComputeEndState() Results {
	row := e.hist.ResultsRow()
	p1, p2, p3 := e.hist.PhaseFractions()

	analyzed := e.cfg.Default.ResultsWindow
	if analyzed > e.block {
		analyzed = e.block
	}

	completed := row[history.TripCompletedCount]
	var meanWait, meanUnassigned, meanAwaiting, meanRiding, meanDistance, meanPrice float64
	if completed > 0 {
		meanUnassigned = row[history.TripUnassignedTime] / completed
		meanAwaiting = row[history.TripAwaitingTime] / completed
		meanRiding = row[history.TripRidingTime] / completed
		meanDistance = row[history.TripDistance] / completed
		meanPrice = row[history.TripPrice] / completed
		meanWait = meanUnassigned + meanAwaiting
	}

	return Results{
		RunID:              e.RunID,
		Version:            Version,
		Timestamp:          time.Now(),
		BlocksSimulated:    e.block,
		BlocksAnalyzed:     analyzed,
		VehicleCount:       row[history.VehicleCount],
		P1Fraction:         p1,
		P2Fraction:         p2,
		P3Fraction:         p3,
		RequestRate:        row[history.TripRequestRate],
		MeanTripDistance:   meanDistance,
		MeanWaitTime:       meanWait,
		MeanUnassignedTime: meanUnassigned,
		MeanAwaitingTime:   meanAwaiting,
		MeanRidingTime:     meanRiding,
		MeanPrice:          meanPrice,
		Identities:         e.hist.ComputeIdentities(),
		GeometryFailures:   e.geometryFailures,
	}
}

// AsMap flattens Results into the key/value mapping §6.3 specifies for
// serialization, keyed by the stable metric identifiers from §3 where one
// exists.
func (r Results) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"name":                         r.RunID,
		"version":                      r.Version,
		"timestamp":                    r.Timestamp.Format(time.RFC3339),
		"BLOCKS_SIMULATED":             r.BlocksSimulated,
		"BLOCKS_ANALYZED":              r.BlocksAnalyzed,
		"VEHICLE_COUNT":                r.VehicleCount,
		"VEHICLE_FRACTION_P1":          r.P1Fraction,
		"VEHICLE_FRACTION_P2":          r.P2Fraction,
		"VEHICLE_FRACTION_P3":          r.P3Fraction,
		"TRIP_REQUEST_RATE":            r.RequestRate,
		"TRIP_MEAN_DISTANCE":           r.MeanTripDistance,
		"TRIP_MEAN_WAIT_TIME":          r.MeanWaitTime,
		"TRIP_MEAN_UNASSIGNED_TIME":    r.MeanUnassignedTime,
		"TRIP_MEAN_AWAITING_TIME":      r.MeanAwaitingTime,
		"TRIP_MEAN_RIDING_TIME":        r.MeanRidingTime,
		"TRIP_MEAN_PRICE":              r.MeanPrice,
		"PHASE_SUM":                    r.Identities.PhaseSum,
		"LITTLES_LAW_P3_RESIDUAL":      r.Identities.LittlesLawP3Residual,
		"LITTLES_LAW_P2_RESIDUAL":      r.Identities.LittlesLawP2Residual,
		"GEOMETRY_REJECTION_FAILURES":  r.GeometryFailures,
	}
}
