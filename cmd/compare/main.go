// Command compare lists the devices present on a source instance but missing
// from the target, matched by fingerprint, and can optionally push the
// installer to each missing device with rate limiting.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scmigrate/models"
	"scmigrate/pkg/compare"
	"scmigrate/pkg/pusher"
	"scmigrate/pkg/screenconnect"
)

func main() {
	var (
		configPath string
		sourceKey  string
		targetKey  string
		csvPath    string
		doPush     bool
		delaySec   int
		maxCount   int
	)

	cmd := &cobra.Command{
		Use:           "compare",
		Short:         "Compare device inventories between two instances and optionally push the installer to missing devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := models.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if targetKey == "" {
				targetKey = config.TargetInstance
			}
			source, ok := config.Instances[sourceKey]
			if !ok {
				return fmt.Errorf("unknown source instance %q", sourceKey)
			}
			target, ok := config.Instances[targetKey]
			if !ok {
				return fmt.Errorf("unknown target instance %q", targetKey)
			}
			if delaySec < 0 {
				delaySec = config.PushDelaySec
			}
			if maxCount < 0 {
				maxCount = config.PushMax
			}

			sourceClient := screenconnect.NewClient(source.BaseURL, source.ExtGUID, source.CtrlSecret)
			targetClient := screenconnect.NewClient(target.BaseURL, target.ExtGUID, target.CtrlSecret)

			ctx := cmd.Context()
			filter := fmt.Sprintf("SessionType = '%s'", config.SessionType)

			sourceSessions, err := sourceClient.GetSessions(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list source sessions: %w", err)
			}
			targetSessions, err := targetClient.GetSessions(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list target sessions: %w", err)
			}

			result := compare.Compare(sourceSessions, targetSessions)
			fmt.Printf("source %s: %d sessions, target %s: %d sessions\n",
				sourceKey, len(sourceSessions), targetKey, len(targetSessions))
			fmt.Printf("matched: %d, missing: %d\n", result.Matched, len(result.Missing))

			if csvPath != "" {
				f, err := os.Create(csvPath)
				if err != nil {
					return fmt.Errorf("failed to create csv file: %w", err)
				}
				defer f.Close()
				if err := compare.WriteCSV(f, result.Missing); err != nil {
					return err
				}
				fmt.Printf("wrote %d missing devices to %s\n", len(result.Missing), csvPath)
			}

			if !doPush || len(result.Missing) == 0 {
				return nil
			}

			dispatcher := &pusher.Dispatcher{
				TargetBaseURL: target.BaseURL,
				InstallerPath: config.InstallerPath,
				TimeoutMillis: config.CommandTimeout,
			}
			dispatcher.PushMissing(ctx, sourceClient, result.Missing, pusher.BulkOptions{
				Delay:    time.Duration(delaySec) * time.Second,
				MaxCount: maxCount,
				Out:      os.Stdout,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "./config.ini", "path to config file")
	cmd.Flags().StringVar(&sourceKey, "source", "", "source instance key")
	cmd.Flags().StringVar(&targetKey, "target", "", "target instance key (defaults to [migration] target)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write missing devices to this CSV file")
	cmd.Flags().BoolVar(&doPush, "push", false, "push the installer to missing devices")
	cmd.Flags().IntVar(&delaySec, "delay", -1, "seconds between pushes (defaults to config)")
	cmd.Flags().IntVar(&maxCount, "max", -1, "maximum pushes per run, 0 for no cap (defaults to config)")
	_ = cmd.MarkFlagRequired("source")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
