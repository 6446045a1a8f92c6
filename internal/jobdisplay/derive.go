// Package jobdisplay derives the render-ready state of the job status row
// shown above the exploration table. Everything here is a pure function of
// its inputs: callers resolve the job snapshot and view flags and pass them in.
package jobdisplay

import (
	"time"

	"duck-explore/internal/domain"
)

const (
	// bandThreshold splits limited row counts into the ">100K" and "<100K" bands.
	bandThreshold = 100000

	noValue = "-"
)

// Variant selects what the status row renders.
type Variant string

const (
	// VariantNone renders nothing.
	VariantNone Variant = "NONE"
	// VariantSampleData renders the sample-data fallback message.
	VariantSampleData Variant = "SAMPLE_DATA"
	// VariantStatus renders the job status row described by DisplayState.
	VariantStatus Variant = "STATUS"
)

// TimerMode selects how elapsed time is shown.
type TimerMode string

const (
	// TimerLive asks the host to keep re-rendering an elapsed timer seeded at LiveStart.
	TimerLive TimerMode = "LIVE"
	// TimerStatic shows a duration computed once from the job's start and end.
	TimerStatic TimerMode = "STATIC"
	// TimerNone shows no time at all.
	TimerNone TimerMode = "NONE"
)

// Link identifies the job detail page the job type label points at.
type Link struct {
	JobID        string `json:"job_id"`
	ProjectID    string `json:"project_id,omitempty"`
	AttemptCount int    `json:"attempt_count"`
}

// DisplayState is the render-ready view model of the job status row.
type DisplayState struct {
	JobTypeLabel         string     `json:"job_type_label"`
	StatusLabel          string     `json:"status_label"`
	StatusValue          string     `json:"status_value"`
	ShowWarningIndicator bool       `json:"show_warning_indicator"`
	OutputLimited        bool       `json:"output_limited"`
	OutputRecordCount    *int64     `json:"output_record_count,omitempty"`
	TimerMode            TimerMode  `json:"timer_mode"`
	LiveStart            *time.Time `json:"live_start,omitempty"`
	ElapsedMillis        *int64     `json:"elapsed_millis,omitempty"`
	Duration             string     `json:"duration,omitempty"`
	Link                 *Link      `json:"link,omitempty"`
}

// Result is the outcome of Derive. Display is set only for VariantStatus.
type Result struct {
	Variant Variant       `json:"variant"`
	Display *DisplayState `json:"display,omitempty"`
}

// Input carries everything Derive looks at.
type Input struct {
	// Snapshot is the latest known job state; nil when no job is known.
	Snapshot *domain.JobSnapshot
	// Approximate is set when the table shows preview (sampled) data.
	Approximate bool
	// HaveRows is set when sampled rows are available for the table.
	HaveRows bool
	// IsRunView is the view's own run/preview flag, used when the job's
	// query type does not say which of the two it was.
	IsRunView bool
}

// Derive maps a job snapshot and view flags to the status row to render.
// It never fails: missing optional fields fall back to "-" or TimerNone.
func Derive(in Input, loc Localizer) Result {
	snap := in.Snapshot
	if snap == nil {
		if in.Approximate && in.HaveRows {
			return Result{Variant: VariantSampleData}
		}
		return Result{Variant: VariantNone}
	}

	isComplete := snap.Status == domain.JobStatusCompleted
	state := &DisplayState{
		JobTypeLabel: jobTypeLabel(snap.QueryType, in.IsRunView, loc),
		TimerMode:    TimerNone,
	}

	if isComplete {
		state.StatusLabel = loc.Message(MsgRows)
		state.StatusValue = rowsValue(snap, loc)
		state.OutputLimited = snap.IsOutputLimited
		if snap.OutputRecordCount != nil {
			n := *snap.OutputRecordCount
			state.OutputRecordCount = &n
		}
		state.ShowWarningIndicator = snap.IsOutputLimited && state.StatusValue != noValue
	} else {
		state.StatusLabel = loc.Message(MsgStatus)
		state.StatusValue = loc.Message(StatusMessageID(snap.Status))
	}

	switch {
	case snap.Status.IsInProgress():
		state.TimerMode = TimerLive
		if snap.StartTime != nil {
			start := *snap.StartTime
			state.LiveStart = &start
		}
	case snap.StartTime != nil && snap.EndTime != nil:
		elapsed := snap.EndTime.Sub(*snap.StartTime).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		state.TimerMode = TimerStatic
		state.ElapsedMillis = &elapsed
		state.Duration = FormatDuration(time.Duration(elapsed) * time.Millisecond)
	}

	if snap.JobID != "" {
		attempts := snap.AttemptCount
		if attempts < 1 {
			attempts = 1
		}
		state.Link = &Link{JobID: snap.JobID, ProjectID: snap.ProjectID, AttemptCount: attempts}
	}

	return Result{Variant: VariantStatus, Display: state}
}

func rowsValue(snap *domain.JobSnapshot, loc Localizer) string {
	if snap.OutputRecordCount == nil || *snap.OutputRecordCount == 0 {
		return noValue
	}
	n := *snap.OutputRecordCount
	if snap.IsOutputLimited {
		if n > bandThreshold {
			return ">100K"
		}
		return "<100K"
	}
	return loc.FormatCount(n)
}

func jobTypeLabel(qt domain.QueryType, isRunView bool, loc Localizer) string {
	switch qt {
	case domain.QueryTypeRun:
		return loc.Message(MsgRun)
	case domain.QueryTypePreview:
		return loc.Message(MsgPreview)
	}
	if isRunView {
		return loc.Message(MsgRun)
	}
	return loc.Message(MsgPreview)
}
