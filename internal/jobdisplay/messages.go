package jobdisplay

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"duck-explore/internal/domain"
)

// MessageID identifies a localized string in the bundled catalog.
type MessageID string

// Message identifiers used by the exploration job status row.
const (
	MsgRows             MessageID = "Explore.Rows"
	MsgStatus           MessageID = "Explore.Status"
	MsgRun              MessageID = "Explore.Run"
	MsgPreview          MessageID = "Explore.Preview"
	MsgJob              MessageID = "Explore.Job"
	MsgLimitHeader      MessageID = "Explore.Run.NewWarning.Header"
	MsgLimitBody        MessageID = "Explore.Run.NewWarning"
	MsgSampleData       MessageID = "Explore.SampleData"
	MsgJobDetailTooltip MessageID = "Explore.JobDetailTooltip"
)

// StatusMessageID returns the catalog key holding the human label of s.
// Unknown statuses map to an empty id, which renders as an empty label.
func StatusMessageID(s domain.JobStatus) MessageID {
	switch s {
	case domain.JobStatusNotSubmitted:
		return "JobStatus.NotSubmitted"
	case domain.JobStatusStarting:
		return "JobStatus.Starting"
	case domain.JobStatusEnqueued:
		return "JobStatus.Enqueued"
	case domain.JobStatusPending:
		return "JobStatus.Pending"
	case domain.JobStatusMetadataRetrieval:
		return "JobStatus.MetadataRetrieval"
	case domain.JobStatusPlanning:
		return "JobStatus.Planning"
	case domain.JobStatusEngineStart:
		return "JobStatus.EngineStart"
	case domain.JobStatusQueued:
		return "JobStatus.Queued"
	case domain.JobStatusExecutionPlanning:
		return "JobStatus.ExecutionPlanning"
	case domain.JobStatusRunning:
		return "JobStatus.Running"
	case domain.JobStatusCancellationRequested:
		return "JobStatus.CancellationRequested"
	case domain.JobStatusCompleted:
		return "JobStatus.Completed"
	case domain.JobStatusCanceled:
		return "JobStatus.Canceled"
	case domain.JobStatusFailed:
		return "JobStatus.Failed"
	default:
		return ""
	}
}

var translations = map[language.Tag]map[MessageID]string{
	language.English: {
		"JobStatus.NotSubmitted":          "Not Submitted",
		"JobStatus.Starting":              "Starting",
		"JobStatus.Enqueued":              "Enqueued",
		"JobStatus.Pending":               "Pending",
		"JobStatus.MetadataRetrieval":     "Metadata Retrieval",
		"JobStatus.Planning":              "Planning",
		"JobStatus.EngineStart":           "Engine Start",
		"JobStatus.Queued":                "Queued",
		"JobStatus.ExecutionPlanning":     "Execution Planning",
		"JobStatus.Running":               "Running",
		"JobStatus.CancellationRequested": "Cancellation Requested",
		"JobStatus.Completed":             "Completed",
		"JobStatus.Canceled":              "Canceled",
		"JobStatus.Failed":                "Failed",
		MsgRows:                           "Rows",
		MsgStatus:                         "Status",
		MsgRun:                            "Run",
		MsgPreview:                        "Preview",
		MsgJob:                            "Job",
		MsgLimitHeader:                    "Results limited",
		MsgLimitBody:                      "The query returned %s rows. Only part of the output was kept; narrow the query or add a LIMIT to see every row.",
		MsgSampleData:                     "Showing sample data. Run the query to see the full results.",
		MsgJobDetailTooltip:               "Jobs Detail Page for #%s",
	},
	language.German: {
		"JobStatus.NotSubmitted":          "Nicht übermittelt",
		"JobStatus.Starting":              "Wird gestartet",
		"JobStatus.Enqueued":              "Eingereiht",
		"JobStatus.Pending":               "Ausstehend",
		"JobStatus.MetadataRetrieval":     "Metadatenabruf",
		"JobStatus.Planning":              "Planung",
		"JobStatus.EngineStart":           "Engine-Start",
		"JobStatus.Queued":                "In Warteschlange",
		"JobStatus.ExecutionPlanning":     "Ausführungsplanung",
		"JobStatus.Running":               "Läuft",
		"JobStatus.CancellationRequested": "Abbruch angefordert",
		"JobStatus.Completed":             "Abgeschlossen",
		"JobStatus.Canceled":              "Abgebrochen",
		"JobStatus.Failed":                "Fehlgeschlagen",
		MsgRows:                           "Zeilen",
		MsgStatus:                         "Status",
		MsgRun:                            "Ausführung",
		MsgPreview:                        "Vorschau",
		MsgJob:                            "Job",
		MsgLimitHeader:                    "Ergebnisse begrenzt",
		MsgLimitBody:                      "Die Abfrage lieferte %s Zeilen. Nur ein Teil der Ausgabe wurde behalten; grenzen Sie die Abfrage ein oder fügen Sie ein LIMIT hinzu.",
		MsgSampleData:                     "Beispieldaten werden angezeigt. Führen Sie die Abfrage aus, um alle Ergebnisse zu sehen.",
		MsgJobDetailTooltip:               "Jobdetailseite für #%s",
	},
}

var (
	bundle    = mustBuildCatalog()
	supported = bundle.Languages()
	matcher   = language.NewMatcher(supported)
)

func mustBuildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for id, text := range msgs {
			if err := b.SetString(tag, string(id), text); err != nil {
				panic(fmt.Sprintf("jobdisplay: register message %s/%s: %v", tag, id, err))
			}
		}
	}
	return b
}

// Localizer resolves message identifiers and formats counts for one locale.
type Localizer interface {
	Message(id MessageID, args ...interface{}) string
	FormatCount(n int64) string
}

// Messages is the catalog-backed Localizer.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

var _ Localizer = (*Messages)(nil)

// NewMessages returns a Localizer for the best catalog match of locale.
// An empty or unparseable locale selects English.
func NewMessages(locale string) *Messages {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = supported[idx]
			}
		}
	}
	return &Messages{tag: tag, printer: message.NewPrinter(tag, message.Catalog(bundle))}
}

// MatchAcceptLanguage picks the best catalog locale for an Accept-Language
// header value. It returns "" when nothing in the header is supported.
func MatchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	return supported[idx].String()
}

// RequestLocale prefers an explicit ?locale over the Accept-Language header.
// An empty result selects the configured default.
func RequestLocale(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("locale")); l != "" {
		return l
	}
	return MatchAcceptLanguage(r.Header.Get("Accept-Language"))
}

// Locale returns the BCP 47 tag the messages are rendered in.
func (m *Messages) Locale() string {
	return m.tag.String()
}

// Message returns the localized text for id. Unknown ids render as empty.
func (m *Messages) Message(id MessageID, args ...interface{}) string {
	if id == "" {
		return ""
	}
	return m.printer.Sprintf(string(id), args...)
}

// FormatCount formats n with the locale's digit grouping.
func (m *Messages) FormatCount(n int64) string {
	return m.printer.Sprintf("%d", n)
}
