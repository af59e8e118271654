package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest asks for aggregated dispatch outcomes over attempts whose
// call was placed inside the range.
type SummaryRequest struct {
	Range TimeRange `json:"range"`
}

type DispatchSummary struct {
	TotalAttempts int `json:"total_attempts"`

	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	NoAnswer int `json:"no_answer"`
	Failed   int `json:"failed"`

	// StillCalling counts attempts placed in the window with no outcome yet.
	StillCalling int `json:"still_calling"`

	AcceptRate float64 `json:"accept_rate"`

	// AveragePositionAccepted reports how deep in the ranked pool accepted
	// drivers sat on average (1 = first candidate answered yes).
	AveragePositionAccepted float64 `json:"average_position_accepted"`

	AverageDistanceKmAccepted float64 `json:"average_distance_km_accepted"`
}
