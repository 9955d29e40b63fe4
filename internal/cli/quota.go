package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's quota usage",
	Long: `Show the current day's unit spend against the daily budget, broken down
by billing category, with the most recent ledger events.`,
	RunE: runQuota,
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the quota ledger for a fresh budget period",
	Long: `Discard the persisted usage record and start a fresh budget period. This
also clears a sticky upstream-exceeded flag, so only run it once the
upstream quota has actually reset.`,
	RunE: runQuotaReset,
}

func init() {
	rootCmd.AddCommand(quotaCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	quotaCmd.Flags().IntP("events", "e", 10, "Number of recent events to show")
}

func runQuota(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxEvents, _ := cmd.Flags().GetInt("events")

	store, err := initStore(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	logger := newLogger(cfg)
	ledger := initLedger(cfg, store, logger)

	rec, err := ledger.State(cmd.Context())
	if err != nil {
		return fmt.Errorf("read quota state: %w", err)
	}

	pct := 0.0
	if rec.TotalBudget > 0 {
		pct = float64(rec.Used) / float64(rec.TotalBudget) * 100
	}

	fmt.Printf("=== Quota (%s) ===\n", cfg.Quota.Credential)
	fmt.Printf("Used:      %d / %d units (%.1f%%)\n", rec.Used, rec.TotalBudget, pct)
	fmt.Printf("Remaining: %d units\n", rec.Remaining())
	if rec.Exceeded {
		fmt.Println("Status:    EXCEEDED (upstream confirmed)")
	}

	if len(rec.ByCategory) > 0 {
		fmt.Printf("\nBy Category:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  CATEGORY\tUNITS\n")
		for name, units := range rec.ByCategory {
			fmt.Fprintf(w, "  %s\t%d\n", name, units)
		}
		w.Flush()
	}

	if len(rec.Events) > 0 {
		fmt.Printf("\nRecent Events:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  TIME\tCATEGORY\tUNITS\tNOTE\n")
		events := rec.Events
		if len(events) > maxEvents {
			events = events[:maxEvents]
		}
		for _, e := range events {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n",
				e.Timestamp.Local().Format("15:04:05"),
				e.Category, e.Units, e.Note,
			)
		}
		w.Flush()
	}

	return nil
}

func runQuotaReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	logger := newLogger(cfg)
	ledger := initLedger(cfg, store, logger)

	rec, err := ledger.Reset(cmd.Context())
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}

	fmt.Printf("Quota ledger reset for %s: %d / %d units\n", cfg.Quota.Credential, rec.Used, rec.TotalBudget)
	return nil
}
