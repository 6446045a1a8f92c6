package ui

import (
	"fmt"

	"duck-explore/internal/domain"
	"duck-explore/internal/service/explore"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type exploreContext struct {
	View      explore.View
	Locale    string
	SQL       string
	CSRFField Node
}

func explorePage(page explore.Page, state exploreContext) Node {
	sqlText := state.SQL
	if sqlText == "" && page.Job != nil {
		sqlText = page.Job.SQLText
	}

	return appPage(
		"Explore",
		"explore",
		page.Localizer.Locale(),
		Div(
			Class(cardClass()),
			Form(
				Method("post"),
				Action("/ui/explore/submit"),
				state.CSRFField,
				Input(Type("hidden"), Name("version"), Value(state.View.DatasetVersion)),
				Label(Text("SQL")),
				Textarea(Name("sql"), Required(), Text(sqlText)),
				Div(
					Class("button-row"),
					Button(Type("submit"), Name("mode"), Value("run"), Class(primaryButtonClass()), Text("Run")),
					Button(Type("submit"), Name("mode"), Value("preview"), Class(secondaryButtonClass()), Text("Preview")),
				),
			),
		),
		Div(
			Class(cardClass()),
			statusRow(page, statusPath(state.View, state.Locale)),
		),
		exploreResult(page),
	)
}

// exploreResult renders the results card. It always carries resultsID so the
// status fragment can swap it in place.
func exploreResult(page explore.Page) Node {
	job := page.Job
	switch {
	case job != nil && job.Status == domain.JobStatusCompleted:
		meta := fmt.Sprintf("%d row(s)", len(job.Rows))
		if job.OutputLimited && job.OutputRecords != nil {
			meta = fmt.Sprintf("%d row(s), showing first %d", *job.OutputRecords, len(job.Rows))
		}
		return Div(
			ID(resultsID),
			Class(cardClass("table-wrap")),
			H2(Text("Results")),
			P(Class(mutedClass()), Text(meta)),
			resultTable(job.Columns, job.Rows),
		)
	case job != nil && job.Status == domain.JobStatusFailed:
		return Div(
			ID(resultsID),
			Class(cardClass()),
			H2(Text("Query Error")),
			Pre(Text(stringPtr(job.ErrorMessage))),
		)
	case job == nil && page.Sample != nil:
		return Div(
			ID(resultsID),
			Class(cardClass("table-wrap")),
			H2(Text("Sample")),
			P(Class(mutedClass()), Text(fmt.Sprintf("First %d row(s) of version %s", len(page.Sample.Rows), page.Sample.DatasetVersion))),
			resultTable(page.Sample.Columns, page.Sample.Rows),
		)
	case job != nil:
		return P(ID(resultsID), Class(mutedClass()), Text(placeholderFor(job.Status)))
	default:
		return P(ID(resultsID), Class(mutedClass()), Text("Run a query to see results."))
	}
}

func placeholderFor(status domain.JobStatus) string {
	if status.IsTerminal() {
		return "The job ended without results."
	}
	return "Results appear here once the job completes."
}
