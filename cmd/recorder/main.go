// Command recorder interposes on a PTY, captures a proctored terminal
// session, and writes a double-encrypted artifact for later review.
package main

import (
	"fmt"
	"os"

	"github.com/azmarif/examguard/internal/artifact"
	"github.com/azmarif/examguard/internal/logger"
	"github.com/azmarif/examguard/internal/machineid"
	"github.com/azmarif/examguard/internal/rcfg"
	"github.com/azmarif/examguard/internal/session"
	"github.com/spf13/cobra"
)

var (
	stateDirFlag string
	logLevelFlag string
	logFileFlag  string
)

func main() {
	root := &cobra.Command{
		Use:   "recorder",
		Short: "exam-recorder — interposes on a PTY and captures a proctored terminal session",
		RunE:  run,
	}
	root.Flags().StringVar(&stateDirFlag, "state-dir", "", "override the recorder's state directory (for tests)")
	root.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&logFileFlag, "log-file", "", "also write logs to this file (logs never go to stdout, which carries the PTY relay)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logLevelFlag, logFileFlag); err != nil {
		return fmt.Errorf("recorder: init logger: %w", err)
	}

	stateDir, err := resolveStateDir()
	if err != nil {
		return err
	}

	username := resolveUsername()
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("recorder: resolve hostname: %w", err)
	}
	machineID := machineid.Compute(hostname)

	fmt.Println("exam-recorder: session starting, type 'exit' to finish")
	logger.Info("session starting", "username", username, "hostname", hostname)

	rec := session.NewRecorder(stateDir, username, hostname, machineID)
	result, err := rec.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("recorder: run session: %w", err)
	}

	password, err := rcfg.InstructorPassword(stateDir)
	if err != nil {
		return fmt.Errorf("recorder: resolve instructor password: %w", err)
	}

	path, err := artifact.Pack(stateDir, result, password)
	if err != nil {
		return fmt.Errorf("recorder: package artifact: %w", err)
	}

	logger.Info("session complete", "artifact", path, "run_counter", result.Metadata.RunCounter)
	fmt.Printf("exam-recorder: wrote %s\n", path)
	return nil
}

func resolveStateDir() (string, error) {
	if stateDirFlag != "" {
		return stateDirFlag, nil
	}
	return rcfg.DefaultDir()
}

func resolveUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "unknown"
}
