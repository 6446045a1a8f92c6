package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

const (
	productName    = "Duck Explore"
	datastarBundle = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.7/bundles/datastar.js"
	lucideBundle   = "https://unpkg.com/lucide@latest/dist/umd/lucide.min.js"
)

// headerLinks are shown in the top bar; key marks the active page.
var headerLinks = []struct{ key, label, href string }{
	{key: "explore", label: "Explore", href: "/ui/explore"},
	{key: "api", label: "Jobs API", href: "/v1/query-jobs"},
}

func documentHead(title string, scripts ...Node) Node {
	return Head(
		Meta(Charset("utf-8")),
		Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
		TitleEl(Text(title+" | "+productName)),
		Link(Rel("icon"), Href("data:,")),
		Link(Rel("stylesheet"), Href("/ui/static/app.css")),
		Group(scripts),
	)
}

// appPage wraps body in the explorer chrome. lang is the resolved UI locale.
func appPage(title, active, lang string, body ...Node) Node {
	if lang == "" {
		lang = "en"
	}
	links := make([]Node, 0, len(headerLinks))
	for _, l := range headerLinks {
		className := "header-link"
		if l.key == active {
			className += " active"
		}
		links = append(links, A(Href(l.href), Class(className), Text(l.label)))
	}

	return HTML(
		Lang(lang),
		documentHead(title,
			Script(Src(lucideBundle)),
			Script(Type("module"), Src(datastarBundle)),
		),
		Body(
			Header(Class("app-header"),
				Strong(Class("brand"), Text(productName)),
				Nav(Class("header-nav"), Group(links)),
			),
			Main(Class("app-main"),
				H1(Class("page-title"), Text(title)),
				Group(body),
			),
			Script(Raw(liveTimerScript)),
			Script(Raw("window.lucide && window.lucide.createIcons();")),
		),
	)
}

func errorPage(title, message string) Node {
	return HTML(
		Lang("en"),
		documentHead(title),
		Body(
			Main(Class("app-main narrow"),
				H1(Class("page-title"), Text(title)),
				P(Text(message)),
				P(A(Href("/ui/explore"), Text("Back to explore"))),
			),
		),
	)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}

func stringPtr(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "-"
	}
	return *v
}

func cellString(value interface{}) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", value)
}

func cardClass(extra ...string) string {
	parts := []string{"Box", "p-3", "mb-3", "card"}
	parts = append(parts, extra...)
	return strings.Join(parts, " ")
}

func mutedClass() string {
	return "color-fg-muted text-small"
}

func primaryButtonClass() string {
	return "btn btn-primary"
}

func secondaryButtonClass() string {
	return "btn"
}

func statusLabel(text, tone string) Node {
	className := "Label"
	if tone != "" {
		className += " Label--" + tone
	}
	return Span(Class(className), Text(text))
}

func containsExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}

// resultTable renders rows behind a client-side quick filter.
func resultTable(columns []string, rows [][]interface{}) Node {
	header := make([]Node, 0, len(columns))
	for i := range columns {
		header = append(header, Th(Text(columns[i])))
	}
	body := make([]Node, 0, len(rows))
	for i := range rows {
		cells := make([]Node, 0, len(rows[i]))
		values := make([]string, 0, len(rows[i]))
		for j := range rows[i] {
			v := cellString(rows[i][j])
			values = append(values, v)
			cells = append(cells, Td(Text(v)))
		}
		body = append(body, Tr(data.Show(containsExpr(strings.Join(values, " "))), Group(cells)))
	}
	return Div(
		data.Signals(map[string]any{"q": ""}),
		Label(Class("sr-only"), Text("Quick filter")),
		Input(Type("text"), Class("form-control mb-2"), data.Bind("q"), Placeholder("Filter rows")),
		Table(
			THead(Tr(Group(header))),
			TBody(Group(body)),
		),
	)
}
