package history

import "testing"

func TestRecordAccumulatesVehicleCounts(t *testing.T) {
	h := New(5, 5)
	h.Record(Row{VehicleCount: 10, VehicleTimeP1: 6, VehicleTimeP2: 2, VehicleTimeP3: 2})
	row := h.ResultsRow()
	if row[VehicleCount] != 10 {
		t.Fatalf("expected vehicle count 10, got %v", row[VehicleCount])
	}
	if row[VehicleTimeP1] != 6 {
		t.Fatalf("expected P1 time 6, got %v", row[VehicleTimeP1])
	}
}

func TestResultsWindowAveragesOverTrailingBlocks(t *testing.T) {
	h := New(2, 2)
	h.Record(Row{VehicleCount: 10})
	h.Record(Row{VehicleCount: 20})
	h.Record(Row{VehicleCount: 30})
	row := h.ResultsRow()
	// window=2 should average the trailing two blocks: 20 and 30.
	if got := row[VehicleCount]; got != 25 {
		t.Fatalf("expected windowed average 25, got %v", got)
	}
}

func TestPhaseFractionsSumToOne(t *testing.T) {
	h := New(10, 10)
	for i := 0; i < 10; i++ {
		h.Record(Row{VehicleCount: 10, VehicleTimeP1: 5, VehicleTimeP2: 3, VehicleTimeP3: 2})
	}
	p1, p2, p3 := h.PhaseFractions()
	sum := p1 + p2 + p3
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("expected phase fractions to sum to ~1, got %f", sum)
	}
}

func TestComputeIdentitiesLittlesLaw(t *testing.T) {
	h := New(50, 50)
	// Steady state: 10 vehicles, request rate 1, every trip rides 3 blocks
	// and awaits 1 block before pickup -> P3 should be ~0.3, P2 ~0.1.
	for i := 0; i < 50; i++ {
		h.Record(Row{
			VehicleCount:          10,
			VehicleTimeP1:         6,
			VehicleTimeP2:         1,
			VehicleTimeP3:         3,
			TripRequestRate:       1,
			TripCompletedCount:    1,
			TripRidingTimeSum:     3,
			TripAwaitingTimeSum:   1,
			TripUnassignedTimeSum: 0,
		})
	}
	idents := h.ComputeIdentities()
	if idents.PhaseSum < 0.99 || idents.PhaseSum > 1.01 {
		t.Fatalf("expected phase sum ~1, got %f", idents.PhaseSum)
	}
	if idents.LittlesLawP3Residual < -0.05 || idents.LittlesLawP3Residual > 0.05 {
		t.Fatalf("expected small Little's Law P3 residual, got %f", idents.LittlesLawP3Residual)
	}
	if idents.LittlesLawP2Residual < -0.05 || idents.LittlesLawP2Residual > 0.05 {
		t.Fatalf("expected small Little's Law P2 residual, got %f", idents.LittlesLawP2Residual)
	}
}

func TestConvergenceResidualZeroAtSteadyState(t *testing.T) {
	h := New(5, 5)
	for i := 0; i < 20; i++ {
		h.Record(Row{VehicleCount: 10, VehicleTimeP1: 5, VehicleTimeP2: 2, VehicleTimeP3: 3})
	}
	row := h.ResultsRow()
	if got := row[ConvergenceMaxRMSResidual]; got > 1e-9 {
		t.Fatalf("expected ~0 convergence residual at steady state, got %v", got)
	}
}
