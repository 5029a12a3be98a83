// Package api exposes the route planning engine over HTTP, translating
// wire-format requests into internal/routing/types values and engine
// results back into JSON. Grounded on the teacher's tracking/handler.go
// request/response DTO shape and validator.v10 usage.
package api

import (
	"time"

	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// EmployeeRequest is one employee in a PlanRequest.
type EmployeeRequest struct {
	EmpCode   string  `json:"emp_code" validate:"required"`
	Lat       float64 `json:"lat" validate:"required,latitude"`
	Lng       float64 `json:"lng" validate:"required,longitude"`
	Gender    string  `json:"gender" validate:"required,oneof=M F"`
	IsMedical bool    `json:"is_medical"`
	IsPWD     bool    `json:"is_pwd"`
	IsNMT     bool    `json:"is_nmt"`
	IsOOB     bool    `json:"is_oob"`
}

// FacilityRequest is the single origin/destination shared by the batch.
type FacilityRequest struct {
	Lat          float64 `json:"lat" validate:"required,latitude"`
	Lng          float64 `json:"lng" validate:"required,longitude"`
	FacilityType string  `json:"facility_type" validate:"required,oneof=CDC DDC"`
}

// RuleTierRequest is one deviation rule tier.
type RuleTierRequest struct {
	MinDistKm        float64 `json:"min_dist_km"`
	MaxDistKm        float64 `json:"max_dist_km"`
	MaxTotalOneWayKm float64 `json:"max_total_one_way_km"`
}

// FleetEntryRequest is one vehicle type available to the orchestrator.
type FleetEntryRequest struct {
	Type     string `json:"type" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	Count    int    `json:"count" validate:"min=0"`
}

// GuardTimingRequest bounds a night-shift window.
type GuardTimingRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ProfileRequest carries planning configuration shared across the batch.
type ProfileRequest struct {
	MaxDurationSeconds     float64                        `json:"max_duration_seconds" validate:"required,gt=0"`
	Fleet                  []FleetEntryRequest            `json:"fleet" validate:"required,min=1,dive"`
	RouteDeviationRules    map[string][]RuleTierRequest   `json:"route_deviation_rules"`
	NightShiftGuardTimings map[string]GuardTimingRequest  `json:"night_shift_guard_timings"`
	FacilityType           string                         `json:"facility_type" validate:"required,oneof=CDC DDC"`
	DirectionPenaltyWeight float64                        `json:"direction_penalty_weight"`
	DropPenalty            float64                        `json:"drop_penalty"`
}

// PlanRequest is the JSON body of POST /api/v1/plan.
type PlanRequest struct {
	RequestID             string            `json:"request_id" validate:"required"`
	Employees             []EmployeeRequest `json:"employees" validate:"required,min=1,dive"`
	Facility              FacilityRequest   `json:"facility" validate:"required"`
	ShiftTime             string            `json:"shift_time" validate:"required,len=4,numeric"`
	Date                  string            `json:"date" validate:"required"`
	Profile               ProfileRequest    `json:"profile" validate:"required"`
	PickupTimePerEmployeeSeconds float64    `json:"pickup_time_per_employee_seconds"`
	ReportingTimeSeconds  float64           `json:"reporting_time_seconds"`
	// TripType accepts both the spec's shorthand ("P"/"D") and its long
	// form ("PICKUP"/"DROPOFF"); normalizeTripType resolves either to the
	// engine's types.TripType in ToDomain.
	TripType              string            `json:"trip_type" validate:"required,oneof=P D PICKUP DROPOFF"`
	Guard                 bool              `json:"guard"`
	// Zones optionally labels each employee (by EmpCode) with a caller-
	// supplied zone name, carried through to the committed route's Zone
	// field; the engine itself never computes or reasons about zones.
	Zones                 map[string]string `json:"zones,omitempty"`
}

// normalizeTripType resolves the request's shorthand or long-form trip
// type string into the engine's types.TripType.
func normalizeTripType(s string) types.TripType {
	switch s {
	case "P", "PICKUP":
		return types.Pickup
	case "D", "DROPOFF":
		return types.Dropoff
	default:
		return types.TripType(s)
	}
}

// shortTripType renders a types.TripType as the spec-mandated response
// shorthand ("P"/"D").
func shortTripType(t types.TripType) string {
	if t == types.Pickup {
		return "P"
	}
	return "D"
}

// ToDomain converts a validated PlanRequest into the engine's PlanningInput.
func (r PlanRequest) ToDomain() types.PlanningInput {
	employees := make([]types.Employee, len(r.Employees))
	for i, e := range r.Employees {
		employees[i] = types.Employee{
			EmpCode:   e.EmpCode,
			Lat:       e.Lat,
			Lng:       e.Lng,
			Gender:    types.Gender(e.Gender),
			IsMedical: e.IsMedical,
			IsPWD:     e.IsPWD,
			IsNMT:     e.IsNMT,
			IsOOB:     e.IsOOB,
			Zone:      r.Zones[e.EmpCode],
		}
	}

	fleet := make([]types.FleetEntry, len(r.Profile.Fleet))
	for i, f := range r.Profile.Fleet {
		fleet[i] = types.FleetEntry{Type: f.Type, Capacity: f.Capacity, Count: f.Count}
	}

	var deviationRules map[types.FacilityType][]types.RuleTier
	if len(r.Profile.RouteDeviationRules) > 0 {
		deviationRules = make(map[types.FacilityType][]types.RuleTier, len(r.Profile.RouteDeviationRules))
		for ft, tiers := range r.Profile.RouteDeviationRules {
			converted := make([]types.RuleTier, len(tiers))
			for i, t := range tiers {
				converted[i] = types.RuleTier{MinDistKm: t.MinDistKm, MaxDistKm: t.MaxDistKm, MaxTotalOneWayKm: t.MaxTotalOneWayKm}
			}
			deviationRules[types.FacilityType(ft)] = converted
		}
	}

	var nightShift map[string]types.GuardTiming
	if len(r.Profile.NightShiftGuardTimings) > 0 {
		nightShift = make(map[string]types.GuardTiming, len(r.Profile.NightShiftGuardTimings))
		for k, v := range r.Profile.NightShiftGuardTimings {
			nightShift[k] = types.GuardTiming{Start: v.Start, End: v.End}
		}
	}

	profile := types.Profile{
		MaxDuration:             time.Duration(r.Profile.MaxDurationSeconds * float64(time.Second)),
		Fleet:                   fleet,
		RouteDeviationRules:     deviationRules,
		NightShiftGuardTimings:  nightShift,
		FacilityType:            types.FacilityType(r.Profile.FacilityType),
		DirectionPenaltyWeight:  r.Profile.DirectionPenaltyWeight,
		DropPenalty:             r.Profile.DropPenalty,
	}

	return types.PlanningInput{
		RequestID:             r.RequestID,
		Employees:             employees,
		Facility:              types.Facility{Lat: r.Facility.Lat, Lng: r.Facility.Lng, FacilityType: types.FacilityType(r.Facility.FacilityType)},
		ShiftTime:             r.ShiftTime,
		Date:                  r.Date,
		Profile:               profile,
		PickupTimePerEmployee: time.Duration(r.PickupTimePerEmployeeSeconds * float64(time.Second)),
		ReportingTime:         time.Duration(r.ReportingTimeSeconds * float64(time.Second)),
		TripType:              normalizeTripType(r.TripType),
		Guard:                 r.Guard,
	}
}

// RouteResponse mirrors types.Route for JSON output.
type RouteResponse struct {
	RouteNumber              int                `json:"route_number"`
	Zone                     string             `json:"zone,omitempty"`
	Employees                []EmployeeResponse `json:"employees"`
	VehicleType              string             `json:"vehicle_type"`
	VehicleCapacity          int                `json:"vehicle_capacity"`
	TripType                 string             `json:"trip_type"`
	Occupancy                int                `json:"occupancy"`
	TotalDistanceMeters      float64            `json:"total_distance_meters"`
	TotalDurationSeconds     float64            `json:"total_duration_seconds"`
	EncodedPolyline          string             `json:"encoded_polyline"`
	Geometry                 [][2]float64       `json:"geometry"`
	Swapped                  bool               `json:"swapped"`
	GuardNeeded              bool               `json:"guard_needed"`
	DurationExceeded         bool               `json:"duration_exceeded"`
	IsSpecialNeedsRoute      bool               `json:"is_special_needs_route"`
	IsMedicalRoute           bool               `json:"is_medical_route"`
	IsPWDRoute               bool               `json:"is_pwd_route"`
	IsNMTRoute               bool               `json:"is_nmt_route"`
	IsOOBRoute               bool               `json:"is_oob_route"`
	AfterFleetExhaustion     bool               `json:"after_fleet_exhaustion"`
	FarthestEmployeeDistance float64            `json:"farthest_employee_distance_meters"`
	UniqueKey                string             `json:"unique_key"`
}

// EmployeeResponse is one employee as placed into a committed route.
type EmployeeResponse struct {
	EmpCode     string  `json:"emp_code"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Gender      string  `json:"gender"`
	IsMedical   bool    `json:"is_medical"`
	IsPWD       bool    `json:"is_pwd"`
	IsNMT       bool    `json:"is_nmt"`
	IsOOB       bool    `json:"is_oob"`
	Order       int     `json:"order"`
	PickupTime  string  `json:"pickup_time,omitempty"`
	DropoffTime string  `json:"dropoff_time,omitempty"`
}

// UnroutedEmployeeResponse is an employee neither phase could place.
type UnroutedEmployeeResponse struct {
	EmpCode   string  `json:"emp_code"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Gender    string  `json:"gender"`
	IsMedical bool    `json:"is_medical"`
	IsPWD     bool    `json:"is_pwd"`
	Location  string  `json:"location"`
}

// PlanResponse is the JSON body returned from POST /api/v1/plan.
type PlanResponse struct {
	RequestID            string                     `json:"request_id"`
	Date                 string                     `json:"date"`
	ShiftTime            string                     `json:"shift_time"`
	TripType             string                     `json:"trip_type"`
	TotalEmployees       int                        `json:"total_employees"`
	TotalRoutedEmployees int                        `json:"total_routed_employees"`
	TotalRoutes          int                        `json:"total_routes"`
	AverageOccupancy     float64                    `json:"average_occupancy"`
	TotalDistanceKm      float64                    `json:"total_distance_km"`
	TotalDurationSeconds float64                    `json:"total_duration_seconds"`
	TotalSwappedRoutes   int                        `json:"total_swapped_routes"`
	TotalGuardedRoutes   int                        `json:"total_guarded_routes"`
	Routes               []RouteResponse            `json:"routes"`
	UnroutedEmployees    []UnroutedEmployeeResponse `json:"unrouted_employees"`
}

// FromDomain converts an engine PlanningOutput into its wire response.
func FromDomain(out *types.PlanningOutput) PlanResponse {
	routes := make([]RouteResponse, len(out.Routes))
	for i, r := range out.Routes {
		employees := make([]EmployeeResponse, len(r.Employees))
		for j, e := range r.Employees {
			employees[j] = EmployeeResponse{
				EmpCode:     e.EmpCode,
				Lat:         e.Lat,
				Lng:         e.Lng,
				Gender:      string(e.Gender),
				IsMedical:   e.IsMedical,
				IsPWD:       e.IsPWD,
				IsNMT:       e.IsNMT,
				IsOOB:       e.IsOOB,
				Order:       e.Order,
				PickupTime:  e.PickupTime,
				DropoffTime: e.DropoffTime,
			}
		}
		routes[i] = RouteResponse{
			RouteNumber:              r.RouteNumber,
			Zone:                     r.Zone,
			Employees:                employees,
			VehicleType:              r.VehicleType,
			VehicleCapacity:          r.VehicleCapacity,
			TripType:                 shortTripType(r.TripType),
			Occupancy:                r.Occupancy(),
			TotalDistanceMeters:      r.RouteDetails.TotalDistance,
			TotalDurationSeconds:     r.RouteDetails.TotalDuration,
			EncodedPolyline:          r.RouteDetails.EncodedPolyline,
			Geometry:                 r.RouteDetails.Geometry,
			Swapped:                  r.Swapped,
			GuardNeeded:              r.GuardNeeded,
			DurationExceeded:         r.DurationExceeded,
			IsSpecialNeedsRoute:      r.IsSpecialNeedsRoute,
			IsMedicalRoute:           r.IsMedicalRoute,
			IsPWDRoute:               r.IsPWDRoute,
			IsNMTRoute:               r.IsNMTRoute,
			IsOOBRoute:               r.IsOOBRoute,
			AfterFleetExhaustion:     r.AfterFleetExhaustion,
			FarthestEmployeeDistance: r.FarthestEmployeeDistance,
			UniqueKey:                r.UniqueKey,
		}
	}

	unrouted := make([]UnroutedEmployeeResponse, len(out.UnroutedEmployees))
	for i, u := range out.UnroutedEmployees {
		unrouted[i] = UnroutedEmployeeResponse{
			EmpCode:   u.EmpCode,
			Lat:       u.Lat,
			Lng:       u.Lng,
			Gender:    string(u.Gender),
			IsMedical: u.IsMedical,
			IsPWD:     u.IsPWD,
			Location:  u.Location,
		}
	}

	return PlanResponse{
		RequestID:            out.RequestID,
		Date:                 out.Date,
		ShiftTime:            out.ShiftTime,
		TripType:             shortTripType(out.TripType),
		TotalEmployees:       out.TotalEmployees,
		TotalRoutedEmployees: out.TotalRoutedEmployees,
		TotalRoutes:          out.TotalRoutes,
		AverageOccupancy:     out.AverageOccupancy,
		TotalDistanceKm:      out.OverallRouteDetails.TotalDistanceKm,
		TotalDurationSeconds: out.OverallRouteDetails.TotalDurationS,
		TotalSwappedRoutes:   out.TotalSwappedRoutes,
		TotalGuardedRoutes:   out.TotalGuardedRoutes,
		Routes:               routes,
		UnroutedEmployees:    unrouted,
	}
}
