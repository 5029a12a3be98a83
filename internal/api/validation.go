package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// India bounding box the engine requires every employee and facility
// coordinate to fall within (spec.md's Employee invariant).
const (
	minLat = 6.0
	maxLat = 38.0
	minLng = 68.0
	maxLng = 98.0
)

// NewValidator builds the struct validator used for request-shape checks
// (required fields, enums, generic lat/lng ranges), following the
// teacher's one validator.New() per handler convention. The
// India-specific bounds the engine actually requires are enforced
// separately by ValidateBounds.
func NewValidator() *validator.Validate {
	return validator.New()
}

// ValidateBounds runs the India-bounds check across every employee and
// the facility in a PlanRequest, beyond what struct tags alone express
// (cross-field India-specific bounds rather than generic lat/lng ranges).
func ValidateBounds(req PlanRequest) error {
	if req.Facility.Lat < minLat || req.Facility.Lat > maxLat || req.Facility.Lng < minLng || req.Facility.Lng > maxLng {
		return fmt.Errorf("facility coordinates (%.4f, %.4f) fall outside India bounds", req.Facility.Lat, req.Facility.Lng)
	}
	for _, e := range req.Employees {
		if e.Lat < minLat || e.Lat > maxLat || e.Lng < minLng || e.Lng > maxLng {
			return fmt.Errorf("employee %s coordinates (%.4f, %.4f) fall outside India bounds", e.EmpCode, e.Lat, e.Lng)
		}
	}
	return nil
}
