package ui

import (
	"net/url"
	"strconv"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

func jobDetailPage(job *domain.QueryJob, loc *jobdisplay.Messages) Node {
	attempts := make([]Node, 0, len(job.AttemptDetails))
	for i := range job.AttemptDetails {
		a := job.AttemptDetails[i]
		attempts = append(attempts, Tr(
			Td(Text(strconv.Itoa(a.Attempt))),
			Td(statusLabel(loc.Message(jobdisplay.StatusMessageID(a.Status)), statusTone(a.Status))),
			Td(Text(formatTimePtr(&a.StartedAt))),
			Td(Text(formatTimePtr(a.EndedAt))),
			Td(Text(stringPtr(a.Reason))),
		))
	}

	records := "-"
	if job.OutputRecords != nil {
		records = loc.FormatCount(*job.OutputRecords)
	}

	return appPage(
		"Job "+job.ID,
		"explore",
		loc.Locale(),
		Div(
			Class(cardClass()),
			Dl(
				Dt(Text("Status")), Dd(statusLabel(loc.Message(jobdisplay.StatusMessageID(job.Status)), statusTone(job.Status))),
				Dt(Text("Type")), Dd(Text(string(job.QueryType))),
				Dt(Text("Dataset version")), Dd(Text(orDash(job.DatasetVersion))),
				Dt(Text("Created")), Dd(Text(formatTimePtr(&job.CreatedAt))),
				Dt(Text("Started")), Dd(Text(formatTimePtr(job.StartedAt))),
				Dt(Text("Completed")), Dd(Text(formatTimePtr(job.CompletedAt))),
				Dt(Text("Output records")), Dd(Text(records)),
				Dt(Text("Output limited")), Dd(Text(strconv.FormatBool(job.OutputLimited))),
				Dt(Text("Error")), Dd(Text(stringPtr(job.ErrorMessage))),
			),
			P(A(Href(exploreJobPath(job)), Text("Open in explore"))),
		),
		Div(
			Class(cardClass()),
			H2(Text("SQL")),
			Pre(Text(job.SQLText)),
		),
		Div(
			Class(cardClass("table-wrap")),
			H2(Text("Attempts ("+strconv.Itoa(job.AttemptCount())+")")),
			Table(
				THead(Tr(Th(Text("#")), Th(Text("Status")), Th(Text("Started")), Th(Text("Ended")), Th(Text("Reason")))),
				TBody(Group(attempts)),
			),
		),
	)
}

func exploreJobPath(job *domain.QueryJob) string {
	q := url.Values{}
	q.Set("job_id", job.ID)
	if job.DatasetVersion != "" {
		q.Set("version", job.DatasetVersion)
	}
	if job.QueryType == domain.QueryTypeRun {
		q.Set("run", "true")
	}
	return "/ui/explore?" + q.Encode()
}

func statusTone(s domain.JobStatus) string {
	switch {
	case s == domain.JobStatusCompleted:
		return "success"
	case s == domain.JobStatusFailed:
		return "danger"
	case s.IsInProgress():
		return "accent"
	default:
		return ""
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
