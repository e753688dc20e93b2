package model

import (
	"errors"
	"math"
	"testing"
)

func TestParsePlanningStatus(t *testing.T) {
	got, err := ParsePlanningStatus(" Ready ")
	if err != nil || got != PlanningReady {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := ParsePlanningStatus("routed"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("want ErrUnknownStatus, got %v", err)
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []OrderStatus{OrderAwaiting, OrderAssigned, OrderDelivered, OrderCancelled} {
		got, err := ParseOrderStatus(string(s))
		if err != nil || got != s {
			t.Fatalf("%s: got %q, %v", s, got, err)
		}
	}
	if _, err := ParseOrderStatus("processing"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("want ErrUnknownStatus, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PlanningStatus
		ok       bool
	}{
		{PlanningPending, PlanningOptimizing, true},
		{PlanningOptimizing, PlanningReady, true},
		{PlanningOptimizing, PlanningPending, true},
		{PlanningReady, PlanningExecuted, true},
		{PlanningReady, PlanningCancelled, true},
		{PlanningCancelled, PlanningPending, true},
		{PlanningPending, PlanningReady, false},
		{PlanningReady, PlanningOptimizing, false},
		{PlanningExecuted, PlanningCancelled, false},
		{PlanningCancelled, PlanningOptimizing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestCoordinateValid(t *testing.T) {
	if !(Coordinate{Lat: -3.71, Lon: -38.54}).Valid() {
		t.Fatal("expected valid")
	}
	if (Coordinate{Lat: math.NaN(), Lon: 0}).Valid() {
		t.Fatal("NaN must be invalid")
	}
	if (Coordinate{Lat: 91, Lon: 0}).Valid() {
		t.Fatal("lat 91 must be invalid")
	}
}
