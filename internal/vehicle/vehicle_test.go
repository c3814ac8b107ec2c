package vehicle

import (
	"math/rand"
	"testing"

	"github.com/realmfikri/ridehail-sim/internal/citygrid"
)

func TestNewVehicleIsIdle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := New(1, citygrid.Location{X: 0, Y: 0}, rng)
	if v.Phase != P1 {
		t.Fatalf("expected new vehicle to be P1, got %v", v.Phase)
	}
	if v.TripID != 0 {
		t.Fatalf("expected new vehicle to have no trip binding")
	}
}

func TestDispatchLifecycle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := New(1, citygrid.Location{X: 0, Y: 0}, rng)
	v.Dispatch(42)
	if v.Phase != P2 || v.TripID != 42 {
		t.Fatalf("expected P2 bound to trip 42, got phase=%v trip=%d", v.Phase, v.TripID)
	}
	v.ArriveAtOrigin()
	if v.Phase != P3 {
		t.Fatalf("expected P3 after arriving at origin, got %v", v.Phase)
	}
	v.CompleteTrip()
	if v.Phase != P1 || v.TripID != 0 {
		t.Fatalf("expected P1 with cleared binding after completing trip, got phase=%v trip=%d", v.Phase, v.TripID)
	}
}

func TestIdleVehicleDoesNotMoveWhenDisabled(t *testing.T) {
	city, _ := citygrid.NewCity(8, 0, 0, 0, false)
	rng := rand.New(rand.NewSource(1))
	start := citygrid.Location{X: 2, Y: 2}
	v := New(1, start, rng)
	for i := 0; i < 10; i++ {
		v.UpdateDirection(city, v.Location, rng)
		v.UpdateLocation(city)
	}
	if v.Location != start {
		t.Fatalf("expected idle vehicle to stay put, moved to %v", v.Location)
	}
}

func TestIdleVehicleWandersWithinBoundsWhenEnabled(t *testing.T) {
	city, _ := citygrid.NewCity(8, 0, 0, 0, true)
	rng := rand.New(rand.NewSource(1))
	v := New(1, citygrid.Location{X: 2, Y: 2}, rng)
	for i := 0; i < 50; i++ {
		v.UpdateDirection(city, v.Location, rng)
		v.UpdateLocation(city)
		if v.Location.X < 0 || v.Location.X >= city.Size || v.Location.Y < 0 || v.Location.Y >= city.Size {
			t.Fatalf("location out of bounds: %v", v.Location)
		}
	}
}

func TestEnRouteVehicleMakesProgressTowardTarget(t *testing.T) {
	city, _ := citygrid.NewCity(10, 0, 0, 0, true)
	rng := rand.New(rand.NewSource(7))
	target := citygrid.Location{X: 7, Y: 7}
	v := New(1, citygrid.Location{X: 0, Y: 0}, rng)
	v.Phase = P2
	prevDist := city.Distance(v.Location, target)
	for i := 0; i < 20 && v.Location != target; i++ {
		v.UpdateDirection(city, target, rng)
		v.UpdateLocation(city)
		newDist := city.Distance(v.Location, target)
		if newDist > prevDist {
			t.Fatalf("distance increased from %d to %d while en route", prevDist, newDist)
		}
		prevDist = newDist
	}
}
