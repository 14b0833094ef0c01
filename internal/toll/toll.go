// Package toll computes road toll charges from distance and vehicle
// class. Unknown vehicle types fall back to the car multiplier so a
// typo never blocks a quote.
package toll

import (
	"fmt"
	"math"
	"strings"
)

// DefaultRate is the per-mile rate in dollars used when callers do not
// supply one.
const DefaultRate = 0.25

var multipliers = map[string]float64{
	"car":        1.0,
	"truck":      1.5,
	"motorcycle": 0.8,
}

// Multiplier returns the rate multiplier for a vehicle type. Matching
// is case-insensitive and unknown types charge the base rate.
func Multiplier(vehicleType string) float64 {
	if m, ok := multipliers[strings.ToLower(strings.TrimSpace(vehicleType))]; ok {
		return m
	}
	return 1.0
}

// Calculate returns the toll for a trip, rounded to whole cents. A zero
// rate is honoured as-is so free roads quote $0.00; callers that want
// the default apply DefaultRate themselves when the rate was omitted.
func Calculate(vehicleType string, distanceMiles, ratePerMile float64) (float64, error) {
	if distanceMiles < 0 {
		return 0, fmt.Errorf("distance must not be negative, got %v", distanceMiles)
	}
	if ratePerMile < 0 {
		return 0, fmt.Errorf("toll rate must not be negative, got %v", ratePerMile)
	}
	amount := distanceMiles * ratePerMile * Multiplier(vehicleType)
	return math.Round(amount*100) / 100, nil
}
