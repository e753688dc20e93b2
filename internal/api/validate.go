package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetroute/internal/model"
)

type depotRequest struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Location *model.Coordinate `json:"location"`
	Active   *bool             `json:"active"`
}

func (req *depotRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if req.Location != nil && !req.Location.Valid() {
		return fmt.Errorf("location %+v is not a valid coordinate", *req.Location)
	}
	return nil
}

type vehicleRequest struct {
	DepotID   string  `json:"depotId"`
	Model     string  `json:"model"`
	Plate     string  `json:"plate"`
	Capacity  int     `json:"capacity"`
	CostPerKm float64 `json:"costPerKm"`
	Active    *bool   `json:"active"`
}

func (req *vehicleRequest) validate() error {
	if req.DepotID == "" {
		return errors.New("depotId is required")
	}
	if strings.TrimSpace(req.Plate) == "" {
		return errors.New("plate is required")
	}
	if req.Capacity <= 0 {
		return errors.New("capacity must be > 0")
	}
	if req.CostPerKm < 0 {
		return errors.New("costPerKm must be >= 0")
	}
	return nil
}

type customerRequest struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Address  string            `json:"address"`
	Location *model.Coordinate `json:"location"`
	Active   *bool             `json:"active"`
}

func (req *customerRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if req.Location == nil {
		return errors.New("location is required")
	}
	if !req.Location.Valid() {
		return fmt.Errorf("location %+v is not a valid coordinate", *req.Location)
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return fmt.Errorf("invalid email: %s", req.Email)
	}
	return nil
}

type orderRequest struct {
	CustomerID string `json:"customerId"`
	Demand     int    `json:"demand"`
}

func (req *orderRequest) validate() error {
	if req.CustomerID == "" {
		return errors.New("customerId is required")
	}
	if req.Demand <= 0 {
		return errors.New("demand must be > 0")
	}
	return nil
}

type planningRequest struct {
	DepotID  string     `json:"depotId"`
	Deadline *time.Time `json:"deadline"`
}

func (req *planningRequest) validate() error {
	if req.DepotID == "" {
		return errors.New("depotId is required")
	}
	return nil
}

type attachRequest struct {
	OrderIDs []string `json:"orderIds"`
}

func (req *attachRequest) validate() error {
	if len(req.OrderIDs) == 0 {
		return errors.New("orderIds must not be empty")
	}
	seen := make(map[string]struct{}, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		if id == "" {
			return errors.New("orderIds must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate order id: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
