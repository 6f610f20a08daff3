package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilicrawl/pkg/dynamic"
)

var (
	dynamicsNoComments  bool
	dynamicsMaxComments int
)

var dynamicsCmd = &cobra.Command{
	Use:   "dynamics",
	Short: "Crawl moments and their comments",
	Long: `Crawl a user's moments (dynamics) with their comment trees.

Each moment is saved as dynamic_<id>.json under the user's download
folder. Moments already saved by a previous run are skipped, so an
interrupted crawl can be restarted without refetching anything.`,
}

var dynamicsCrawlCmd = &cobra.Command{
	Use:   "crawl <uid>",
	Short: "Crawl every moment of a user",
	Example: `  # Crawl all moments with comments
  bilicrawl dynamics crawl 12345

  # Skip the comment trees
  bilicrawl dynamics crawl 12345 --no-comments

  # Cap the comments fetched per moment
  bilicrawl dynamics crawl 12345 --max-comments 200`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])

		cfg := loadConfig()
		if dynamicsMaxComments != 0 {
			cfg.Dynamic.MaxComments = dynamicsMaxComments
		}
		m := newManagerFrom(cfg)

		ctx, cancel := commandContext()
		defer cancel()

		snapshot, err := m.CrawlDynamics(ctx, uid, !dynamicsNoComments)
		if err != nil {
			fatal("dynamics crawl failed", err)
		}

		fmt.Printf("\nDone in %s: %d moments listed, %d saved, %d skipped, %d failed, %d comments\n",
			snapshot.Elapsed.Round(time.Second), snapshot.Listed, snapshot.Processed,
			snapshot.Skipped, snapshot.Failed, snapshot.Comments)
	},
}

var dynamicsGetCmd = &cobra.Command{
	Use:   "get <dynamic-id>",
	Short: "Fetch a single moment by ID",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		result, err := m.DownloadDynamic(ctx, args[0], !dynamicsNoComments)
		if err != nil {
			fatal("moment fetch failed", err)
		}

		if result.Status == dynamic.StatusSkipped {
			fmt.Printf("Skipped %s: already saved\n", result.ID)
			return
		}
		fmt.Printf("Saved %s with %d comments\n", result.ID, result.CommentCount)
	},
}

func init() {
	rootCmd.AddCommand(dynamicsCmd)
	dynamicsCmd.AddCommand(dynamicsCrawlCmd)
	dynamicsCmd.AddCommand(dynamicsGetCmd)

	dynamicsCmd.PersistentFlags().BoolVar(&dynamicsNoComments, "no-comments", false, "skip comment trees")
	dynamicsCrawlCmd.Flags().IntVar(&dynamicsMaxComments, "max-comments", 0, "maximum comments per moment (-1 for unlimited)")
}
