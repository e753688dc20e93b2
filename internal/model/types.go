package model

import (
	"math"
	"time"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether c is a usable geographic point.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type Depot struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Address  string      `json:"address,omitempty"`
	Location *Coordinate `json:"location,omitempty"` // nil until geocoded
	Active   bool        `json:"active"`
}

type Customer struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email,omitempty"`
	Address  string     `json:"address,omitempty"`
	Location Coordinate `json:"location"`
	Active   bool       `json:"active"`
}

type Vehicle struct {
	ID        string  `json:"id"`
	DepotID   string  `json:"depotId"`
	Model     string  `json:"model,omitempty"`
	Plate     string  `json:"plate"`
	Capacity  int     `json:"capacity"`
	CostPerKm float64 `json:"costPerKm"`
	Active    bool    `json:"active"`
}

// Order is a single delivery. Location is resolved from the owning customer
// when the order is read for planning.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Demand     int         `json:"demand"`
	Status     OrderStatus `json:"status"`
	PlanningID *string     `json:"planningId,omitempty"`
	RouteID    *string     `json:"routeId,omitempty"`
	Sequence   *int        `json:"sequence,omitempty"`
	Location   *Coordinate `json:"location,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Planning is the batch of orders routed together in one optimization run.
type Planning struct {
	ID        string         `json:"id"`
	DepotID   string         `json:"depotId"`
	Deadline  *time.Time     `json:"deadline,omitempty"`
	Status    PlanningStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	OrderIDs  []string       `json:"orderIds"`
	// RunID identifies the optimization that owns an optimizing planning.
	RunID string `json:"runId,omitempty"`
}

type Route struct {
	ID             string    `json:"id"`
	PlanningID     string    `json:"planningId"`
	VehicleID      string    `json:"vehicleId"`
	DistanceMeters float64   `json:"distanceMeters"`
	Load           int       `json:"load"`
	Cost           float64   `json:"cost"`
	OrderIDs       []string  `json:"orderIds"` // by sequence position
	CreatedAt      time.Time `json:"createdAt"`
}

// RouteDraft is a solved route not yet persisted.
type RouteDraft struct {
	VehicleID      string
	DistanceMeters float64
	Load           int
	Cost           float64
	OrderIDs       []string // OrderIDs[i] gets sequence position i+1
}
