package ui

import (
	"net/url"
	"strconv"
	"time"

	"duck-explore/internal/jobdisplay"
	"duck-explore/internal/service/explore"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// Elements the status fragment replaces on refresh.
const (
	statusRowID = "job-status-row"
	resultsID   = "explore-results"
)

// JobPath returns the job detail page path, scoped to the project when one is known.
func JobPath(jobID, projectID string) string {
	if projectID == "" {
		return "/ui/jobs/" + url.PathEscape(jobID)
	}
	return "/ui/projects/" + url.PathEscape(projectID) + "/jobs/" + url.PathEscape(jobID)
}

func jobLinkHref(link *jobdisplay.Link) string {
	q := url.Values{}
	q.Set("attempts", strconv.Itoa(link.AttemptCount))
	return JobPath(link.JobID, link.ProjectID) + "?" + q.Encode()
}

// statusPath is the fragment endpoint that re-renders the row for v.
func statusPath(v explore.View, locale string) string {
	q := url.Values{}
	if v.DatasetVersion != "" {
		q.Set("version", v.DatasetVersion)
	}
	if v.JobID != "" {
		q.Set("job_id", v.JobID)
	}
	q.Set("run", strconv.FormatBool(v.IsRun))
	q.Set("approximate", strconv.FormatBool(v.Approximate))
	if locale != "" {
		q.Set("locale", locale)
	}
	return "/ui/explore/status?" + q.Encode()
}

// statusRow renders the job status row for page. While the timer is live the
// row polls statusURL once per second and is swapped in place by id.
func statusRow(page explore.Page, statusURL string) Node {
	loc := page.Localizer
	switch page.Status.Variant {
	case jobdisplay.VariantSampleData:
		return Div(ID(statusRowID), Class("job-status-row sample-data"),
			Span(Class(mutedClass()), Text(loc.Message(jobdisplay.MsgSampleData))),
		)
	case jobdisplay.VariantStatus:
	default:
		return Div(ID(statusRowID))
	}

	d := page.Status.Display
	live := isLive(page.Status)
	return Div(
		ID(statusRowID),
		Class("job-status-row d-flex flex-items-center gap-2"),
		If(live, Attr("data-on-interval__duration.1s", "@get('"+statusURL+"')")),
		Span(Class("job-status-label"), Text(loc.Message(jobdisplay.MsgJob)+":")),
		jobTypeNode(d, loc),
		Span(Class(mutedClass()), Text(d.StatusLabel+":")),
		Span(Class("job-status-value"), Text(d.StatusValue)),
		If(d.OutputLimited, limitWarning(d, loc)),
		timerNode(d),
	)
}

// statusFragment is the polled response. The results card rides along once
// the job stops being live so the table appears without a reload.
func statusFragment(page explore.Page, statusURL string) Node {
	row := statusRow(page, statusURL)
	if page.Job == nil || isLive(page.Status) {
		return row
	}
	return Group{row, exploreResult(page)}
}

func isLive(res jobdisplay.Result) bool {
	return res.Display != nil && res.Display.TimerMode == jobdisplay.TimerLive
}

func jobTypeNode(d *jobdisplay.DisplayState, loc *jobdisplay.Messages) Node {
	if d.Link == nil {
		return Span(Class("job-type"), Text(d.JobTypeLabel))
	}
	return A(
		Class("job-type"),
		Href(jobLinkHref(d.Link)),
		Target("_blank"),
		Rel("noopener noreferrer"),
		Title(loc.Message(jobdisplay.MsgJobDetailTooltip, d.Link.JobID)),
		Text(d.JobTypeLabel),
	)
}

// limitWarning explains the row limit. The icon is dropped when there is no
// count to qualify.
func limitWarning(d *jobdisplay.DisplayState, loc *jobdisplay.Messages) Node {
	var count int64
	if d.OutputRecordCount != nil {
		count = *d.OutputRecordCount
	}
	header := loc.Message(jobdisplay.MsgLimitHeader)
	body := loc.Message(jobdisplay.MsgLimitBody, loc.FormatCount(count))
	return Span(
		Class("job-limit-warning tooltip"),
		Attr("tabindex", "0"),
		Attr("aria-label", header),
		If(d.ShowWarningIndicator,
			I(Class("nav-icon color-fg-attention"), Attr("data-lucide", "triangle-alert"), Attr("aria-hidden", "true")),
		),
		Span(
			Class("tooltip-body"),
			Attr("role", "tooltip"),
			Strong(Text(header)),
			P(Class("mb-0"), Text(body)),
		),
	)
}

func timerNode(d *jobdisplay.DisplayState) Node {
	switch d.TimerMode {
	case jobdisplay.TimerLive:
		if d.LiveStart == nil {
			return nil
		}
		elapsed := time.Since(*d.LiveStart)
		if elapsed < 0 {
			elapsed = 0
		}
		return Span(
			Class("job-timer live"),
			Attr("data-live-start", d.LiveStart.UTC().Format(time.RFC3339Nano)),
			Text(jobdisplay.FormatDuration(elapsed)),
		)
	case jobdisplay.TimerStatic:
		return Span(Class("job-timer"), Text(d.Duration))
	default:
		return nil
	}
}
