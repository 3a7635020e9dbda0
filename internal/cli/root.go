package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/dflow/internal/client"
)

// DefaultAPIURL — адрес API, если не задан --api-url или DFLOW_API_URL.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd создаёт корневую команду dflow со всеми подкомандами.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var apiKey string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "dflow",
		Short:         "dflow CLI — digitization process admission and lifecycle",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("DFLOW_API_URL", DefaultAPIURL), "API server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("DFLOW_API_KEY"), "API key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *client.Client { return client.New(apiURL, apiKey) }
	outputFn := func() *Output {
		return NewOutput(jsonOutput, rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		NewProcessCmd(clientFn, outputFn),
		NewJobCmd(clientFn, outputFn),
		NewCatalogCmd(clientFn, outputFn),
		NewConfigCmd(outputFn),
	)

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
