package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vidpulse/vidpulse/pkg/model"
)

var materialsCmd = &cobra.Command{
	Use:   "materials <query>...",
	Short: "Search for source material ranked by viral score",
	Long: `Run a free-text search and rank the results by viral score. Useful for
finding source material in a topic. Each distinct query costs one search
call; repeats inside the cache window are free.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMaterials,
}

func init() {
	rootCmd.AddCommand(materialsCmd)
	materialsCmd.Flags().StringP("region", "r", "", "Region code (default from config)")
	materialsCmd.Flags().Int("lookback", 0, "Only include videos newer than this many hours")
	materialsCmd.Flags().IntP("max", "n", 0, "Maximum results (default from config)")
}

func runMaterials(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")
	lookback, _ := cmd.Flags().GetInt("lookback")
	maxResults, _ := cmd.Flags().GetInt("max")
	if region == "" {
		region = cfg.Defaults.Region
	}
	if maxResults == 0 {
		maxResults = cfg.Defaults.MaxResults
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	saved := loadSavedChannels(cfg, a.logger)

	query := strings.Join(args, " ")
	params := model.SearchParams{
		Region:        region,
		Query:         query,
		LookbackHours: lookback,
		MaxResults:    maxResults,
	}

	scored, err := a.engine.Materials(cmd.Context(), params, saved)
	if err != nil {
		return fmt.Errorf("materials: %w", err)
	}

	fmt.Printf("=== Materials (%q) ===\n\n", query)
	printScored(scored, false)
	return nil
}
