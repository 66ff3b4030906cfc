package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	accountID string
)

var rootCmd = &cobra.Command{
	Use:   "fleet-cli",
	Short: "A CLI client for the fleetmaster orchestrator",
	Long:  `A command-line interface for managing delegates and dispatching tasks to the fleet.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "orchestrator base URL")
	rootCmd.PersistentFlags().StringVar(&accountID, "account", "", "account id (tenant)")
	rootCmd.MarkPersistentFlagRequired("account")
}

func accountURL(format string, args ...interface{}) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s%s", serverURL, accountID, fmt.Sprintf(format, args...))
}
