package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vidpulse/vidpulse/pkg/model"
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Fetch the trending feed ranked by viral score",
	Long: `Fetch the region's trending chart, score each video against its channel
baseline, and print the feed ranked by viral score. Repeated identical
queries inside the cache window cost no quota.`,
	RunE: runTrending,
}

func init() {
	rootCmd.AddCommand(trendingCmd)
	trendingCmd.Flags().StringP("region", "r", "", "Region code (default from config)")
	trendingCmd.Flags().StringP("category", "c", "", "Video category ID")
	trendingCmd.Flags().IntP("max", "n", 0, "Maximum results (default from config)")
	trendingCmd.Flags().Int("lookback", 0, "Only include videos newer than this many hours")
}

func runTrending(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")
	category, _ := cmd.Flags().GetString("category")
	maxResults, _ := cmd.Flags().GetInt("max")
	lookback, _ := cmd.Flags().GetInt("lookback")

	if region == "" {
		region = cfg.Defaults.Region
	}
	if maxResults == 0 {
		maxResults = cfg.Defaults.MaxResults
	}
	if lookback == 0 {
		lookback = cfg.Defaults.LookbackHours
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	saved := loadSavedChannels(cfg, a.logger)

	params := model.SearchParams{
		Region:        region,
		CategoryID:    category,
		LookbackHours: lookback,
		Strategy:      model.StrategyMostPopular,
		MaxResults:    maxResults,
	}

	scored, err := a.engine.Trending(cmd.Context(), params, saved)
	if err != nil {
		return fmt.Errorf("trending: %w", err)
	}

	fmt.Printf("=== Trending (%s) ===\n\n", region)
	printScored(scored, false)
	return nil
}

// printScored renders a scored result set as an aligned table.
func printScored(scored []model.ScoredVideo, withSpike bool) {
	if len(scored) == 0 {
		fmt.Println("No results.")
		return
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if withSpike {
		fmt.Fprintf(w, "SPIKE\tVIRAL\tVIEWS\tAGE\tCHANNEL\tTITLE\n")
	} else {
		fmt.Fprintf(w, "VIRAL\tVIEWS\tEXPECTED\tAGE\tCHANNEL\tTITLE\n")
	}

	for _, s := range scored {
		age := formatAge(s.Video.HoursSince(now))
		if withSpike {
			fmt.Fprintf(w, "%.1f\t%.1f\t%d\t%s\t%s\t%s\n",
				s.Derived.SpikeScore, s.Derived.ViralScore,
				s.Video.ViewCount, age,
				s.Video.ChannelTitle, truncateTitle(s.Video.Title),
			)
		} else {
			fmt.Fprintf(w, "%.1f\t%d\t%.0f\t%s\t%s\t%s\n",
				s.Derived.ViralScore,
				s.Video.ViewCount, s.Derived.ExpectedViews, age,
				s.Video.ChannelTitle, truncateTitle(s.Video.Title),
			)
		}
	}
	w.Flush()
}

func formatAge(hours float64) string {
	if hours < 48 {
		return fmt.Sprintf("%.0fh", hours)
	}
	return fmt.Sprintf("%.0fd", hours/24)
}

func truncateTitle(title string) string {
	const max = 60
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	return string(runes[:max-1]) + "…"
}
