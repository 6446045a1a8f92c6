package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"duck-explore/internal/api"
	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
)

var jobColumns = []string{"id", "type", "status", "version", "rows", "attempts", "created_at"}

func newJobCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit and inspect query jobs",
	}

	cmd.AddCommand(newJobSubmitCmd(client))
	cmd.AddCommand(newJobGetCmd(client))
	cmd.AddCommand(newJobListCmd(client))
	cmd.AddCommand(newJobCancelCmd(client))
	cmd.AddCommand(newJobDeleteCmd(client))
	cmd.AddCommand(newJobStatusCmd(client))

	return cmd
}

func newJobSubmitCmd(client *Client) *cobra.Command {
	var (
		sqlText  string
		preview  bool
		version  string
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a query job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queryType := domain.QueryTypeRun
			if preview {
				queryType = domain.QueryTypePreview
			}
			body := map[string]string{
				"sql":             sqlText,
				"query_type":      string(queryType),
				"dataset_version": version,
			}

			var job api.QueryJobResponse
			if err := client.DoJSON(cmd.Context(), http.MethodPost, "/query-jobs", nil, body, &job); err != nil {
				return err
			}

			if wait {
				path := "/query-jobs/" + url.PathEscape(job.ID)
				for !domain.JobStatus(job.Status).IsTerminal() {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(interval):
					}
					if err := client.DoJSON(cmd.Context(), http.MethodGet, path, nil, nil, &job); err != nil {
						return err
					}
				}
			}
			return printJob(cmd, job)
		},
	}

	cmd.Flags().StringVar(&sqlText, "sql", "", "SQL text to execute (required)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Submit as a preview instead of a full run")
	cmd.Flags().StringVar(&version, "version", "", "Dataset version the query targets")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job reaches a terminal status")
	cmd.Flags().DurationVar(&interval, "poll-interval", time.Second, "Polling interval used with --wait")
	_ = cmd.MarkFlagRequired("sql")

	return cmd
}

func newJobGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a query job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job api.QueryJobResponse
			if err := client.DoJSON(cmd.Context(), http.MethodGet, "/query-jobs/"+url.PathEscape(args[0]), nil, nil, &job); err != nil {
				return err
			}
			return printJob(cmd, job)
		},
	}
}

func newJobListCmd(client *Client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent query jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var list api.QueryJobList
			if err := client.DoJSON(cmd.Context(), http.MethodGet, "/query-jobs", q, nil, &list); err != nil {
				return err
			}
			if getOutputFormat(cmd) == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list.Jobs))
			for _, j := range list.Jobs {
				rows = append(rows, jobRow(j))
			}
			return PrintTable(cmd.OutOrStdout(), jobColumns, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to list (0 uses the server default)")
	return cmd
}

func newJobCancelCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running query job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/query-jobs/" + url.PathEscape(args[0]) + "/cancel"
			if err := client.DoJSON(cmd.Context(), http.MethodPost, path, nil, nil, nil); err != nil {
				return err
			}
			return printAck(cmd, "cancelled", args[0])
		},
	}
}

func newJobDeleteCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a query job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.DoJSON(cmd.Context(), http.MethodDelete, "/query-jobs/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			return printAck(cmd, "deleted", args[0])
		},
	}
}

func newJobStatusCmd(client *Client) *cobra.Command {
	var (
		version     string
		jobID       string
		run         bool
		approximate bool
		locale      string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the derived job status row for an explore view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if version != "" {
				q.Set("version", version)
			}
			if jobID != "" {
				q.Set("job_id", jobID)
			}
			q.Set("run", strconv.FormatBool(run))
			q.Set("approximate", strconv.FormatBool(approximate))
			if locale != "" {
				q.Set("locale", locale)
			}

			var res jobdisplay.Result
			if err := client.DoJSON(cmd.Context(), http.MethodGet, "/explore/status", q, nil, &res); err != nil {
				return err
			}
			if getOutputFormat(cmd) == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), res)
			}
			PrintDetail(cmd.OutOrStdout(), statusFields(res))
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Dataset version shown in the view")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job bound to the view")
	cmd.Flags().BoolVar(&run, "run", false, "Treat the view as a full run")
	cmd.Flags().BoolVar(&approximate, "approximate", false, "The view shows approximate sample data")
	cmd.Flags().StringVar(&locale, "locale", "", "Locale for labels (defaults to the server locale)")

	return cmd
}

func statusFields(res jobdisplay.Result) map[string]string {
	fields := map[string]string{"variant": string(res.Variant)}
	d := res.Display
	if d == nil {
		return fields
	}
	fields["job_type"] = d.JobTypeLabel
	fields["status_label"] = d.StatusLabel
	fields["status_value"] = d.StatusValue
	fields["timer"] = string(d.TimerMode)
	fields["warning"] = strconv.FormatBool(d.ShowWarningIndicator)
	switch {
	case d.Duration != "":
		fields["duration"] = d.Duration
	case d.LiveStart != nil:
		fields["live_start"] = d.LiveStart.Format(time.RFC3339)
	}
	if d.Link != nil {
		fields["job_id"] = d.Link.JobID
		fields["attempts"] = strconv.Itoa(d.Link.AttemptCount)
		if d.Link.ProjectID != "" {
			fields["project_id"] = d.Link.ProjectID
		}
	}
	return fields
}

func printJob(cmd *cobra.Command, job api.QueryJobResponse) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == outputJSON {
		return PrintJSON(out, job)
	}
	fields := map[string]string{
		"id":         job.ID,
		"type":       job.QueryType,
		"status":     job.Status,
		"version":    orDash(job.DatasetVersion),
		"rows":       rowsCell(job),
		"attempts":   strconv.Itoa(job.AttemptCount),
		"created_at": job.CreatedAt.Format(time.RFC3339),
		"sql":        job.SQL,
	}
	if job.ErrorMessage != nil {
		fields["error"] = *job.ErrorMessage
	}
	PrintDetail(out, fields)
	if len(job.Columns) > 0 {
		_, _ = fmt.Fprintln(out)
		rows := make([][]string, 0, len(job.Rows))
		for _, r := range job.Rows {
			row := make([]string, len(r))
			for i, v := range r {
				if v == nil {
					row[i] = "NULL"
					continue
				}
				row[i] = fmt.Sprint(v)
			}
			rows = append(rows, row)
		}
		return PrintTable(out, job.Columns, rows)
	}
	return nil
}

func printAck(cmd *cobra.Command, action, id string) error {
	if getOutputFormat(cmd) == outputJSON {
		return PrintJSON(cmd.OutOrStdout(), map[string]string{"status": action, "id": id})
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", id, action)
	return nil
}

func jobRow(j api.QueryJobResponse) []string {
	return []string{
		j.ID,
		j.QueryType,
		j.Status,
		orDash(j.DatasetVersion),
		rowsCell(j),
		strconv.Itoa(j.AttemptCount),
		j.CreatedAt.Format(time.RFC3339),
	}
}

func rowsCell(j api.QueryJobResponse) string {
	if j.OutputRecords == nil {
		return "-"
	}
	s := strconv.FormatInt(*j.OutputRecords, 10)
	if j.OutputLimited {
		s += "+"
	}
	return s
}
