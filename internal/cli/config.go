package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/dflow/internal/config"
)

// NewConfigCmd создаёт группу команд для локального файла конфигурации.
func NewConfigCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check dflow.toml",
	}

	cmd.AddCommand(
		newConfigInitCmd(outputFn),
		newConfigValidateCmd(outputFn),
	)

	return cmd
}

func newConfigInitCmd(outputFn func() *Output) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			if err := config.CreateSample(path); err != nil {
				return err
			}
			outputFn().Success("Created " + path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Validate configuration and print the process order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}

			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return err
			}
			cat, err := cfg.Catalog()
			if err != nil {
				return err
			}

			out := outputFn()
			source := resolved
			if !exists {
				source = "defaults (" + resolved + " not found)"
			}

			if out.IsJSON() {
				out.JSON(map[string]any{
					"path":   resolved,
					"exists": exists,
					"driver": cfg.Store.Driver,
					"order":  cat.Order(),
				})
				return nil
			}

			out.Fields([][2]string{
				{"Config", source},
				{"Store", cfg.Store.Driver},
				{"Processes", fmt.Sprint(cat.Order())},
			})
			return nil
		},
	}
}
