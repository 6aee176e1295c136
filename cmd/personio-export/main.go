// personio-export pulls HR master data, employment and compensation records
// and employee documents from the Personio API and writes CSV artifacts plus
// a per-employee document tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hrtools/personio-export/internal/config"
	"github.com/hrtools/personio-export/pkg/export"
	"github.com/hrtools/personio-export/pkg/logging"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "personio-export",
	Short: "Personio HR data export",
	Long:  `Exports Personio employee data to CSV files and downloads employee documents.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logging.Setup(logging.Config{
			Level:  logging.LogLevel(cfg.Logging.Level),
			Pretty: cfg.Logging.Format == "console",
			Output: os.Stderr,
		})
		return nil
	},
	SilenceUsage: true,
}

// newRunner wires the export pipeline from the loaded config.
func newRunner() (*export.Runner, error) {
	return export.NewRunner(export.Config{
		ClientID:          cfg.Personio.ClientID,
		ClientSecret:      cfg.Personio.ClientSecret,
		BaseURL:           cfg.Personio.BaseURL,
		OutputPath:        cfg.Export.OutputPath,
		IncludeDocuments:  cfg.Export.IncludeDocuments,
		DocumentWorkers:   cfg.Export.DocumentWorkers,
		HTTPTimeout:       cfg.HTTP.Timeout,
		RetryMaxAttempts:  cfg.HTTP.RetryMaxAttempts,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "path to the configuration file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
