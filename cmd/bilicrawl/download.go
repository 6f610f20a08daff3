package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilicrawl/pkg/collection"
	"bilicrawl/pkg/stats"
	"bilicrawl/pkg/video"
)

var downloadCollectionType string

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download videos",
	Long: `Download videos from Bilibili.

Downloads are idempotent: a video whose folder already exists is
skipped, so an interrupted run can simply be restarted. Muxing the
downloaded streams requires ffmpeg on PATH (or --config ffmpeg_path).`,
}

var downloadVideoCmd = &cobra.Command{
	Use:   "video <bvid>",
	Short: "Download a single video",
	Example: `  # Download one video into the output directory
  bilicrawl download video BV1xx411c7mD

  # Skip the danmaku files
  bilicrawl download video BV1xx411c7mD --no-danmaku`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		result, err := m.DownloadVideo(ctx, args[0])
		if err != nil {
			fatal("download failed", err)
		}
		printVideoResult(result)
	},
}

var downloadUserCmd = &cobra.Command{
	Use:   "user <uid>",
	Short: "Download every video in a user's space",
	Example: `  # Download all uploads of user 12345 with 5 workers
  bilicrawl download user 12345 --concurrency 5`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		snapshot, err := m.DownloadUserVideos(ctx, uid)
		if err != nil {
			fatal("download failed", err)
		}
		printSnapshot(snapshot)
	},
}

var downloadCollectionCmd = &cobra.Command{
	Use:   "collection <uid> <collection-id>",
	Short: "Download every video in a season or series",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		id := parseID(args[1])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		snapshot, err := m.DownloadCollection(ctx, uid, id, collection.Type(downloadCollectionType))
		if err != nil {
			fatal("download failed", err)
		}
		printSnapshot(snapshot)
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.AddCommand(downloadVideoCmd)
	downloadCmd.AddCommand(downloadUserCmd)
	downloadCmd.AddCommand(downloadCollectionCmd)

	downloadCollectionCmd.Flags().StringVar(&downloadCollectionType, "type", "auto", "collection type (auto, season, series)")
}

func printVideoResult(result *video.Result) {
	switch result.Status {
	case video.StatusSkipped:
		fmt.Printf("Skipped %s (%s): already downloaded\n", result.Bvid, result.Title)
	case video.StatusPartialFailure:
		fmt.Printf("Partially downloaded %s (%s): %d parts done, %d failed\n",
			result.Bvid, result.Title, result.PagesDone, result.PagesFailed)
	default:
		fmt.Printf("Downloaded %s (%s): %d parts\n", result.Bvid, result.Title, result.PagesDone)
	}
}

func printSnapshot(s stats.Snapshot) {
	fmt.Printf("\nDone in %s: %d listed, %d processed, %d skipped, %d failed\n",
		s.Elapsed.Round(time.Second), s.Listed, s.Processed, s.Skipped, s.Failed)
}
