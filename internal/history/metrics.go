package history

// Metric is a stable identifier for one column of the history table. Names
// match the contract in the specification's data model exactly — consumers
// (terminal results, snapshots, sequence runner) key off these strings.
type Metric string

const (
	VehicleCount             Metric = "VEHICLE_COUNT"
	VehicleTime               Metric = "VEHICLE_TIME"
	VehicleTimeP1             Metric = "VEHICLE_TIME_P1"
	VehicleTimeP2             Metric = "VEHICLE_TIME_P2"
	VehicleTimeP3             Metric = "VEHICLE_TIME_P3"
	TripCount                 Metric = "TRIP_COUNT"
	TripRequestRate           Metric = "TRIP_REQUEST_RATE"
	TripCompletedCount        Metric = "TRIP_COMPLETED_COUNT"
	TripAwaitingTime          Metric = "TRIP_AWAITING_TIME"
	TripUnassignedTime        Metric = "TRIP_UNASSIGNED_TIME"
	TripRidingTime            Metric = "TRIP_RIDING_TIME"
	TripDistance              Metric = "TRIP_DISTANCE"
	TripPrice                 Metric = "TRIP_PRICE"
	TripForwardDispatchCount  Metric = "TRIP_FORWARD_DISPATCH_COUNT"
	ConvergenceMaxRMSResidual Metric = "CONVERGENCE_MAX_RMS_RESIDUAL"
)

// AllMetrics enumerates every required column, in the order the schema
// documents them.
var AllMetrics = []Metric{
	VehicleCount,
	VehicleTime,
	VehicleTimeP1,
	VehicleTimeP2,
	VehicleTimeP3,
	TripCount,
	TripRequestRate,
	TripCompletedCount,
	TripAwaitingTime,
	TripUnassignedTime,
	TripRidingTime,
	TripDistance,
	TripPrice,
	TripForwardDispatchCount,
	ConvergenceMaxRMSResidual,
}
