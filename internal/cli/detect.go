package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vidpulse/vidpulse/pkg/model"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect chart videos over-performing their channel baseline",
	Long: `Scan the region's trending chart for videos whose views already exceed
twice their channel's expected level, ranked by view velocity. Runs over the
same cache entry as trending, so a detect pass after a trending fetch is
free.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringP("region", "r", "", "Region code (default from config)")
	detectCmd.Flags().StringP("category", "c", "", "Video category ID")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")
	category, _ := cmd.Flags().GetString("category")
	if region == "" {
		region = cfg.Defaults.Region
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	saved := loadSavedChannels(cfg, a.logger)

	params := model.SearchParams{
		Region:     region,
		CategoryID: category,
		MaxResults: cfg.Defaults.MaxResults,
	}

	scored, err := a.engine.AutoDetect(cmd.Context(), params, saved)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	fmt.Printf("=== Detected outliers (%s) ===\n\n", region)
	printScored(scored, false)
	return nil
}
