package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile      string
	stateBackend string
	stateFile    string
	logLevel     string
	workers      int
)

var rootCmd = &cobra.Command{
	Use:           "docbatch",
	Short:         "docbatch - queue and run batch document jobs",
	Long:          "docbatch queues compress, merge, split, watermark and OCR jobs over many documents and runs them by priority with pause, resume, cancel and retry.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVar(&stateBackend, "state", "", "state backend: file, redis, postgres or mysql")
	flags.StringVar(&stateFile, "state-file", "", "state file for the file backend")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.IntVarP(&workers, "workers", "w", 0, "jobs run at the same time")
}
