package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown status")

type OrderStatus string

const (
	OrderAwaiting  OrderStatus = "awaiting"
	OrderAssigned  OrderStatus = "assigned"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus maps a status name to its OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OrderAwaiting:
		return OrderAwaiting, nil
	case OrderAssigned:
		return OrderAssigned, nil
	case OrderDelivered:
		return OrderDelivered, nil
	case OrderCancelled:
		return OrderCancelled, nil
	}
	return "", fmt.Errorf("order status %q: %w", s, ErrUnknownStatus)
}

type PlanningStatus string

const (
	PlanningPending    PlanningStatus = "pending"
	PlanningOptimizing PlanningStatus = "optimizing"
	PlanningReady      PlanningStatus = "ready"
	PlanningExecuted   PlanningStatus = "executed"
	PlanningCancelled  PlanningStatus = "cancelled"
)

// ParsePlanningStatus maps a status name to its PlanningStatus.
func ParsePlanningStatus(s string) (PlanningStatus, error) {
	switch PlanningStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PlanningPending:
		return PlanningPending, nil
	case PlanningOptimizing:
		return PlanningOptimizing, nil
	case PlanningReady:
		return PlanningReady, nil
	case PlanningExecuted:
		return PlanningExecuted, nil
	case PlanningCancelled:
		return PlanningCancelled, nil
	}
	return "", fmt.Errorf("planning status %q: %w", s, ErrUnknownStatus)
}

// CanTransition reports whether the planning lifecycle allows from -> to.
func CanTransition(from, to PlanningStatus) bool {
	switch from {
	case PlanningPending:
		return to == PlanningOptimizing || to == PlanningCancelled
	case PlanningOptimizing:
		return to == PlanningReady || to == PlanningPending || to == PlanningCancelled
	case PlanningReady:
		return to == PlanningExecuted || to == PlanningCancelled
	case PlanningCancelled:
		return to == PlanningPending
	case PlanningExecuted:
		return false
	}
	return false
}
