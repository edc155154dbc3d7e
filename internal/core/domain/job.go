package domain

import (
	"errors"
	"time"
)

type JobID string

type JobStatus string

const (
	JobStatusPending   JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Job represents one admitted analysis request.
type Job struct {
	ID        JobID     `json:"id"`
	Seq       int       `json:"seq"` // admission order, starting at 1
	Params    JobParams `json:"params"`
	Status    JobStatus `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobParams are the validated parameters handed to the analyzer.
type JobParams struct {
	RA          float64 `json:"ra"`  // degrees
	Dec         float64 `json:"dec"` // degrees
	InputDir    string  `json:"indir"`
	MatchRadius float64 `json:"matchradius"`
	Tuning      Tuning  `json:"tuning"`
}

// Tuning carries the fixed analysis thresholds. They are passed through to the
// analyzer untouched.
type Tuning struct {
	PeriodLower              float64 `json:"periodlower"`
	PeriodUpper              float64 `json:"periodupper"`
	PeriodTests              int     `json:"periodtests"`
	ThresholdCounts          int     `json:"thresholdcounts"`
	HiCounts                 int     `json:"hicounts"`
	LowCounts                int     `json:"lowcounts"`
	LowestCounts             int     `json:"lowestcounts"`
	StarReject               float64 `json:"starreject"`
	CloseRejectD             float64 `json:"closerejectd"`
	TargetRadius             float64 `json:"targetradius"`
	MinCompStars             float64 `json:"mincompstars"`
	MinCompStarsTotal        int     `json:"mincompstarstotal"`
	MaxCandidateStars        int     `json:"maxcandidatestars"`
	VarSearchGlobalStdev     float64 `json:"varsearchglobalstdev"`
	VarSearchThresh          float64 `json:"varsearchthresh"`
	VarSearchStdev           float64 `json:"varsearchstdev"`
	VarSearchMagWidth        float64 `json:"varsearchmagwidth"`
	VarSearchMinImages       float64 `json:"varsearchminimages"`
	IgnoreEdgeFraction       float64 `json:"ignoreedgefraction"`
	OutlierError             float64 `json:"outliererror"`
	OutlierStdev             float64 `json:"outlierstdev"`
	ColourTerm               float64 `json:"colourterm"`
	ColourError              float64 `json:"colourerror"`
	TargetColour             float64 `json:"targetcolour"`
	RestrictCompColourCentre float64 `json:"restrictcompcolourcentre"`
	RestrictCompColourRange  float64 `json:"restrictcompcolourrange"`
	RestrictMagBrightest     float64 `json:"restrictmagbrightest"`
	RestrictMagDimmest       float64 `json:"restrictmagdimmest"`
	RejectMagBrightest       float64 `json:"rejectmagbrightest"`
	RejectMagDimmest         float64 `json:"rejectmagdimmest"`
}

// DefaultTuning returns the thresholds the submission form has always used.
func DefaultTuning() Tuning {
	return Tuning{
		PeriodLower:              -99.9,
		PeriodUpper:              -99.9,
		PeriodTests:              10000,
		ThresholdCounts:          1000000,
		HiCounts:                 3000000,
		LowCounts:                5000,
		LowestCounts:             1800,
		StarReject:               0.3,
		CloseRejectD:             5.0,
		TargetRadius:             1.5,
		MinCompStars:             0.1,
		MinCompStarsTotal:        -99,
		MaxCandidateStars:        10000,
		VarSearchGlobalStdev:     -99.9,
		VarSearchThresh:          10000,
		VarSearchStdev:           1.5,
		VarSearchMagWidth:        0.5,
		VarSearchMinImages:       0.3,
		IgnoreEdgeFraction:       0.05,
		OutlierError:             4,
		OutlierStdev:             4,
		ColourTerm:               0.0,
		ColourError:              0.0,
		TargetColour:             -99.0,
		RestrictCompColourCentre: -999.0,
		RestrictCompColourRange:  -99.0,
		RestrictMagBrightest:     -99.0,
		RestrictMagDimmest:       99.0,
		RejectMagBrightest:       -99.0,
		RejectMagDimmest:         99.0,
	}
}

// Phase is one step of an analysis run.
type Phase string

const (
	PhaseAnalyse    Phase = "analyse"
	PhasePhotometry Phase = "photometry"
	PhasePlot       Phase = "plot"
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhaseAnalyse, PhasePhotometry, PhasePlot}

// Outcome is the classified result of a finished job.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result is what a worker reports once it stops.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Phase   Phase   `json:"phase,omitempty"` // phase that failed
	Reason  string  `json:"reason,omitempty"`
}

func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailure
}

var ErrJobNotFound = errors.New("job not found")
