package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/dflow/internal/client"
)

// NewProcessCmd создаёт группу команд для запуска и завершения процессов.
func NewProcessCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Start, finish and report processes",
	}

	cmd.AddCommand(
		newProcessRequestCmd(clientFn, outputFn),
		newProcessInitiateCmd(clientFn, outputFn),
		newProcessDoneCmd(clientFn, outputFn),
		newProcessFailCmd(clientFn, outputFn),
		newProcessProgressCmd(clientFn, outputFn),
	)

	return cmd
}

func newProcessRequestCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "request PROCESS_CODE",
		Short: "Start a process on the oldest eligible job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adm, err := clientFn().RequestProcess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAdmission(outputFn(), adm)
			return nil
		},
	}
}

func newProcessInitiateCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "initiate JOB_ID PROCESS_CODE",
		Short: "Start a process on a specific job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			adm, err := clientFn().InitiateProcess(cmd.Context(), jobID, args[1])
			if err != nil {
				return err
			}
			printAdmission(outputFn(), adm)
			return nil
		},
	}
}

func newProcessDoneCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "done JOB_ID PROCESS_CODE",
		Short: "Mark a running process as done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			res, err := clientFn().ProcessDone(cmd.Context(), jobID, args[1])
			if err != nil {
				return err
			}
			printEntry(outputFn(), res)
			return nil
		},
	}
}

func newProcessFailCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail JOB_ID PROCESS_CODE",
		Short: "Mark a running process as failed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			res, err := clientFn().ProcessFail(cmd.Context(), jobID, args[1], reason)
			if err != nil {
				return err
			}
			printEntry(outputFn(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason")

	return cmd
}

func newProcessProgressCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	var p client.Progress

	cmd := &cobra.Command{
		Use:   "progress JOB_ID PROCESS_CODE",
		Short: "Record progress of a running process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("percent") && p.Total > 0 {
				p.PercentDone = float64(p.Done) * 100 / float64(p.Total)
			}
			res, err := clientFn().ProcessProgress(cmd.Context(), jobID, args[1], p)
			if err != nil {
				return err
			}
			printEntry(outputFn(), res)
			return nil
		},
	}

	cmd.Flags().Int64Var(&p.Total, "total", 0, "Total units of work")
	cmd.Flags().Int64Var(&p.Done, "done", 0, "Completed units of work")
	cmd.Flags().Float64Var(&p.PercentDone, "percent", 0, "Percent done (default: done/total)")

	return cmd
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func printAdmission(out *Output, adm *client.Admission) {
	headers := []string{"JOB_ID", "PROCESS", "ENTRY_ID", "STATE", "STARTED"}
	rows := [][]string{{
		strconv.FormatInt(adm.JobID, 10),
		adm.ProcessCode,
		adm.Entry.ID,
		adm.Entry.State,
		adm.Entry.StartedAt,
	}}
	out.Print(headers, rows, adm)
}

func printEntry(out *Output, res *client.EntryResult) {
	headers := []string{"JOB_ID", "PROCESS", "STATE", "PROGRESS", "ERROR"}
	rows := [][]string{{
		strconv.FormatInt(res.JobID, 10),
		res.Entry.ProcessCode,
		res.Entry.State,
		formatProgress(res.Entry.Progress),
		res.Entry.Error,
	}}
	out.Print(headers, rows, res)
}

func formatProgress(p *client.Progress) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%s%%)", p.Done, p.Total, strconv.FormatFloat(p.PercentDone, 'f', -1, 64))
}
