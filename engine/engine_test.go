package engine

import (
	"math"
	"testing"

	"github.com/realmfikri/ridehail-sim/internal/simconfig"
	"github.com/realmfikri/ridehail-sim/internal/vehicle"
)

func testConfig(citySize, vehicleCount int, baseDemand float64, seed int64) simconfig.Config {
	cfg := simconfig.Defaults()
	cfg.Default.CitySize = citySize
	cfg.Default.VehicleCount = vehicleCount
	cfg.Default.BaseDemand = baseDemand
	cfg.Default.RandomNumberSeed = seed
	cfg.Default.ResultsWindow = 50
	cfg.Animation.SmoothingWindow = 20
	return cfg
}

func TestPhasePartitionInvariant(t *testing.T) {
	e, err := New(testConfig(12, 10, 0.4, 7))
	if err != nil {
		t.Fatalf("unexpected error constructing engine: %v", err)
	}
	for i := 0; i < 100; i++ {
		e.NextBlock()
		var p1, p2, p3 int
		for _, v := range e.vehicles {
			switch v.Phase {
			case vehicle.P1:
				p1++
			case vehicle.P2:
				p2++
			case vehicle.P3:
				p3++
			}
		}
		if total := p1 + p2 + p3; total != len(e.vehicles) {
			t.Fatalf("block %d: phase partition %d+%d+%d != vehicle count %d", i, p1, p2, p3, total)
		}
	}
}

func TestBindingConsistencyInvariant(t *testing.T) {
	e, err := New(testConfig(12, 10, 0.4, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		e.NextBlock()
		for _, v := range e.vehicles {
			if v.Phase == vehicle.P1 {
				if v.TripID != 0 {
					t.Fatalf("block %d: idle vehicle %d has non-zero trip binding %d", i, v.ID, v.TripID)
				}
				continue
			}
			tr, ok := e.trips[v.TripID]
			if !ok {
				t.Fatalf("block %d: vehicle %d bound to missing trip %d", i, v.ID, v.TripID)
			}
			if tr.VehicleID != v.ID {
				t.Fatalf("block %d: trip %d bound to vehicle %d but vehicle %d claims it", i, tr.ID, tr.VehicleID, v.ID)
			}
		}
	}
}

func TestDeterminismGivenIdenticalSeedAndConfig(t *testing.T) {
	cfg := testConfig(12, 10, 0.4, 42)
	e1, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e2, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 50; i++ {
		r1 := e1.NextBlock()
		r2 := e2.NextBlock()
		if len(r1.Vehicles) != len(r2.Vehicles) {
			t.Fatalf("block %d: vehicle count diverged %d vs %d", i, len(r1.Vehicles), len(r2.Vehicles))
		}
		for idx := range r1.Vehicles {
			if r1.Vehicles[idx] != r2.Vehicles[idx] {
				t.Fatalf("block %d: vehicle snapshot %d diverged: %+v vs %+v", i, idx, r1.Vehicles[idx], r2.Vehicles[idx])
			}
		}
		if len(r1.Trips) != len(r2.Trips) {
			t.Fatalf("block %d: trip count diverged %d vs %d", i, len(r1.Trips), len(r2.Trips))
		}
	}
}

func TestScenarioAZeroDemandVehicleWandersNoTrips(t *testing.T) {
	e, err := New(testConfig(8, 1, 0, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		e.NextBlock()
	}
	if len(e.trips) != 0 {
		t.Fatalf("expected no trips ever created with zero demand, found %d", len(e.trips))
	}
	for _, v := range e.vehicles {
		if v.Phase != vehicle.P1 {
			t.Fatalf("expected sole vehicle to remain P1 with no demand, got %v", v.Phase)
		}
	}
}

func TestScenarioBSteadyStateStaysWithinBounds(t *testing.T) {
	e, err := New(testConfig(8, 1, 0.16, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 300; i++ {
		e.NextBlock()
		for _, v := range e.vehicles {
			if v.Location.X < 0 || v.Location.X >= e.city.Size || v.Location.Y < 0 || v.Location.Y >= e.city.Size {
				t.Fatalf("block %d: vehicle %d out of bounds at %+v", i, v.ID, v.Location)
			}
		}
	}
	p1, p2, p3 := e.hist.PhaseFractions()
	sum := p1 + p2 + p3
	if sum < 0.99 || sum > 1.01 {
		t.Fatalf("expected steady-state phase fractions to sum to ~1, got %f", sum)
	}
}

func TestScenarioDLittlesLawHoldsWithinFivePercent(t *testing.T) {
	cfg := testConfig(12, 10, 0.4, 99)
	cfg.Default.TripInhomogeneity = 0
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 500; i++ {
		e.NextBlock()
	}
	idents := e.hist.ComputeIdentities()
	if math.Abs(idents.LittlesLawP3Residual) > 0.05 {
		t.Fatalf("expected P3 Little's Law residual within 5%%, got %f", idents.LittlesLawP3Residual)
	}
	if math.Abs(idents.LittlesLawP2Residual) > 0.05 {
		t.Fatalf("expected P2 Little's Law residual within 5%%, got %f", idents.LittlesLawP2Residual)
	}
}

func TestVehicleCountZeroRejectedByConstructionOrLeavesNoVehicles(t *testing.T) {
	e, err := New(testConfig(8, 0, 0.1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.vehicles) != 0 {
		t.Fatalf("expected zero vehicles, got %d", len(e.vehicles))
	}
	result := e.NextBlock()
	if len(result.Vehicles) != 0 {
		t.Fatalf("expected empty vehicle snapshot, got %d", len(result.Vehicles))
	}
}

func TestBaseDemandZeroCreatesNoTrips(t *testing.T) {
	e, err := New(testConfig(8, 5, 0, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		e.NextBlock()
	}
	if len(e.trips) != 0 {
		t.Fatalf("expected no trips with base_demand=0, found %d", len(e.trips))
	}
}

func TestSupplyReductionNeverRemovesBusyVehicleWhileIdleExists(t *testing.T) {
	e, err := New(testConfig(12, 6, 0.4, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.NextBlock()

	var idleCount, busyCount int
	for _, v := range e.vehicles {
		if v.Phase == vehicle.P1 {
			idleCount++
		} else {
			busyCount++
		}
	}
	if idleCount == 0 {
		t.Skip("no idle vehicles present this block to exercise removal-ordering guarantee")
	}

	ids := e.removalCandidates(idleCount)
	for _, id := range ids {
		if e.vehicles[id].Phase != vehicle.P1 {
			t.Fatalf("expected removal candidates to be drawn from idle vehicles first, got phase %v", e.vehicles[id].Phase)
		}
	}

	if busyCount > 0 {
		// Asking for more removals than there are idle vehicles must still
		// never surface a P2/P3 id: the result saturates at idleCount.
		over := e.removalCandidates(idleCount + busyCount)
		if len(over) != idleCount {
			t.Fatalf("expected removal candidates to saturate at idle count %d, got %d", idleCount, len(over))
		}
		for _, id := range over {
			if e.vehicles[id].Phase != vehicle.P1 {
				t.Fatalf("expected no P2/P3 vehicle among removal candidates, got phase %v", e.vehicles[id].Phase)
			}
		}
	}
}

func TestAdjustSupplyNeverRemovesBusyVehicleEvenWhenOverRequested(t *testing.T) {
	e, err := New(testConfig(12, 6, 0.4, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.NextBlock()

	before := map[int]vehicle.Phase{}
	var idleCount, busyCount int
	for id, v := range e.vehicles {
		before[id] = v.Phase
		if v.Phase == vehicle.P1 {
			idleCount++
		} else {
			busyCount++
		}
	}
	if busyCount == 0 {
		t.Skip("no busy vehicles present this block to exercise the never-mid-trip guarantee")
	}

	// Request removal of every vehicle; only the idle ones may go.
	e.adjustSupply(-len(e.vehicles))

	for id, phase := range before {
		if phase == vehicle.P1 {
			continue
		}
		if _, stillPresent := e.vehicles[id]; !stillPresent {
			t.Fatalf("busy vehicle %d (phase %v) was removed by supply reduction", id, phase)
		}
	}
	if len(e.vehicles) != busyCount {
		t.Fatalf("expected exactly the %d busy vehicles to remain, got %d", busyCount, len(e.vehicles))
	}
}

func TestAdjustSupplyNeverDropsBelowOneVehicle(t *testing.T) {
	e, err := New(testConfig(8, 2, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.adjustSupply(-10)
	if len(e.vehicles) < 1 {
		t.Fatalf("expected at least 1 vehicle to remain, got %d", len(e.vehicles))
	}
}
