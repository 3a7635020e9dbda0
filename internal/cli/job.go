package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/dflow/internal/client"
)

// NewJobCmd создаёт группу команд для просмотра job'ов и их metadata.
func NewJobCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs and their metadata",
	}

	metadata := &cobra.Command{
		Use:   "metadata",
		Short: "Read and write job metadata",
	}
	metadata.AddCommand(
		newJobMetadataGetCmd(clientFn, outputFn),
		newJobMetadataSetCmd(clientFn, outputFn),
	)

	cmd.AddCommand(
		newJobShowCmd(clientFn, outputFn),
		metadata,
	)

	return cmd
}

func newJobShowCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job state, metadata and process history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := clientFn().GetJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(job)
				return nil
			}

			out.Fields([][2]string{
				{"ID", strconv.FormatInt(job.ID, 10)},
				{"State", job.State},
				{"Created", job.CreatedAt},
				{"Next", orDash(strings.Join(job.Next, ", "))},
			})

			if len(job.Metadata) > 0 {
				out.Raw("")
				keys := make([]string, 0, len(job.Metadata))
				for k := range job.Metadata {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				rows := make([][]string, len(keys))
				for i, k := range keys {
					rows[i] = []string{k, formatValue(job.Metadata[k])}
				}
				out.Table([]string{"KEY", "VALUE"}, rows)
			}

			if len(job.History) > 0 {
				out.Raw("")
				rows := make([][]string, len(job.History))
				for i, e := range job.History {
					rows[i] = []string{
						e.ProcessCode,
						e.State,
						orDash(e.StartedAt),
						orDash(e.FinishedAt),
						formatProgress(e.Progress),
						e.Error,
					}
				}
				out.Table([]string{"PROCESS", "STATE", "STARTED", "FINISHED", "PROGRESS", "ERROR"}, rows)
			}
			return nil
		},
	}
}

func newJobMetadataGetCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get JOB_ID KEY",
		Short: "Print a metadata value (null if absent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			md, err := clientFn().JobMetadata(cmd.Context(), jobID, args[1])
			if err != nil {
				return err
			}
			printMetadata(outputFn(), md)
			return nil
		},
	}
}

func newJobMetadataSetCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "set JOB_ID KEY VALUE",
		Short: "Set a metadata value",
		Long: `Set a metadata value.

VALUE is JSON: true, 42, "text", {"k": "v"}. Anything that is not valid JSON
is stored as a string.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			md, err := clientFn().UpdateMetadata(cmd.Context(), jobID, args[1], metadataValue(args[2]))
			if err != nil {
				return err
			}
			printMetadata(outputFn(), md)
			return nil
		},
	}
}

// metadataValue приводит аргумент к JSON: невалидный JSON становится строкой.
func metadataValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	b, _ := json.Marshal(arg)
	return b
}

func printMetadata(out *Output, md *client.Metadata) {
	if out.IsJSON() {
		out.JSON(md)
		return
	}
	if !md.Exists() {
		out.Raw("null")
		return
	}
	out.Raw(string(md.Value))
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
