package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/dflow/internal/client"
)

// NewCatalogCmd создаёт группу команд для каталога процессов.
func NewCatalogCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the process catalog",
	}

	cmd.AddCommand(newCatalogListCmd(clientFn, outputFn))

	return cmd
}

func newCatalogListCmd(clientFn func() *client.Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List process types and flow parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := clientFn().Catalog(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(cat)
				return nil
			}

			rows := make([][]string, len(cat.Processes))
			for i, p := range cat.Processes {
				allowed := "unlimited"
				if p.AllowedProcesses > 0 {
					allowed = strconv.Itoa(p.AllowedProcesses)
				}
				rows[i] = []string{
					strconv.Itoa(p.Position),
					p.Code,
					allowed,
					strconv.FormatBool(p.Manual),
					orDash(strings.Join(p.Requires, ", ")),
					formatConditions(p.DependsOn),
				}
			}
			out.Table([]string{"POS", "CODE", "ALLOWED", "MANUAL", "REQUIRES", "DEPENDS_ON"}, rows)

			if len(cat.FlowParameters) > 0 {
				out.Raw("")
				rows = make([][]string, len(cat.FlowParameters))
				for i, p := range cat.FlowParameters {
					rows[i] = []string{
						p.Code,
						p.Type,
						orDash(strings.Join(p.Values, ", ")),
						formatConditions(p.DependsOn),
					}
				}
				out.Table([]string{"PARAMETER", "TYPE", "VALUES", "DEPENDS_ON"}, rows)
			}
			return nil
		},
	}
}

func formatConditions(conds []client.Condition) string {
	if len(conds) == 0 {
		return "-"
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.Key + "=" + formatValue(c.Value)
	}
	return strings.Join(parts, ", ")
}
