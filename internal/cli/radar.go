package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vidpulse/vidpulse/pkg/pipeline"
)

var radarCmd = &cobra.Command{
	Use:   "radar <channel>",
	Short: "Scan a channel's niche for spiking videos",
	Long: `Scan the niche around a seed channel (UC… ID or @handle): extract the
channel's keyword profile, search for recent candidates, and rank them by
spike score with at most one video per channel.`,
	Args: cobra.ExactArgs(1),
	RunE: runRadar,
}

func init() {
	rootCmd.AddCommand(radarCmd)
	radarCmd.Flags().StringP("region", "r", "", "Region code (default from config)")
	radarCmd.Flags().Int("lookback", 72, "Candidate age window in hours")
}

func runRadar(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")
	lookback, _ := cmd.Flags().GetInt("lookback")
	if region == "" {
		region = cfg.Defaults.Region
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	saved := loadSavedChannels(cfg, a.logger)

	params := pipeline.RadarParams{
		SeedChannel:   args[0],
		Region:        region,
		LookbackHours: lookback,
	}

	scored, err := a.engine.Radar(cmd.Context(), params, saved, func(p pipeline.Phase) {
		fmt.Fprintf(os.Stderr, "radar: %s\n", p)
	})
	if err != nil {
		return fmt.Errorf("radar: %w", err)
	}

	fmt.Printf("=== Radar (%s) ===\n\n", args[0])
	printScored(scored, true)
	return nil
}
