// Command viewer decrypts, verifies, and summarizes exam-recorder
// artifacts for an instructor.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/azmarif/examguard/internal/analyzer"
	"github.com/azmarif/examguard/internal/artifact"
	"github.com/azmarif/examguard/internal/logger"
	"github.com/azmarif/examguard/internal/rcfg"
	"github.com/spf13/cobra"
)

var (
	stateDirFlag string
	passwordFlag string
	logLevelFlag string
	logFileFlag  string
)

func main() {
	root := &cobra.Command{
		Use:   "viewer",
		Short: "exam-viewer — opens, summarizes, and verifies exam-recorder artifacts",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevelFlag, logFileFlag)
		},
	}
	root.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "", "override the default config/state directory")
	root.PersistentFlags().StringVar(&passwordFlag, "password", "", "instructor password (overrides config/env)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "also write logs to this file")

	root.AddCommand(openCmd(), summaryCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveStateDir() (string, error) {
	if stateDirFlag != "" {
		return stateDirFlag, nil
	}
	return rcfg.DefaultDir()
}

func resolvePassword(stateDir string) (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	return rcfg.InstructorPassword(stateDir)
}

func loadReport(path string) (*analyzer.AnalysisReport, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	password, err := resolvePassword(stateDir)
	if err != nil {
		return nil, err
	}
	decrypted, err := artifact.Open(path, password)
	if err != nil {
		return nil, fmt.Errorf("viewer: open artifact: %w", err)
	}
	return analyzer.Analyze(decrypted)
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open [artifact-path]",
		Short: "decrypt an artifact and print its full analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := loadReport(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [artifact-path]",
		Short: "print a one-line summary of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := loadReport(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s@%s: %d keystrokes, %d commands, %d suspicious events, duration %s\n",
				report.Username, report.Hostname, report.Summary.TotalKeystrokes,
				report.Summary.CommandsExecuted, len(report.SuspiciousActivities), report.SessionDuration)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [artifact-path]",
		Short: "check an artifact's integrity hash without printing its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := loadReport(args[0])
			if err != nil {
				return err
			}
			if report.IntegrityPassed {
				fmt.Println("integrity: PASSED")
				return nil
			}
			fmt.Println("integrity: FAILED")
			logger.Warn("artifact integrity check failed", "path", args[0])
			return nil
		},
	}
}
