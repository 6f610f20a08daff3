package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilicrawl/pkg/collection"
)

var (
	listCollectionType string
	listDynamicsLimit  int
)

var listVideosCmd = &cobra.Command{
	Use:   "list-videos <uid>",
	Short: "List every video in a user's space",
	Example: `  # List all uploads of user 12345
  bilicrawl list-videos 12345`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		videos, err := m.ListVideos(ctx, uid)
		if err != nil {
			fatal("failed to list videos", err)
		}

		fmt.Printf("Found %d videos:\n\n", len(videos))
		for i, v := range videos {
			fmt.Printf("%4d. [%s] %s\n", i+1, v.Bvid, v.Title)
			fmt.Printf("      length: %s  plays: %d  published: %s\n",
				v.Length, v.Play, formatUnix(v.Created))
		}
	},
}

var listSeriesCmd = &cobra.Command{
	Use:   "list-series <uid>",
	Short: "List the seasons and series in a user's space",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		infos, err := m.ListCollections(ctx, uid)
		if err != nil {
			fatal("failed to list collections", err)
		}

		fmt.Printf("Found %d collections:\n\n", len(infos))
		for i, info := range infos {
			fmt.Printf("%4d. [%s %d] %s (%d videos)\n", i+1, info.Type, info.ID, info.Name, info.Total)
			if info.Description != "" {
				fmt.Printf("      %s\n", info.Description)
			}
		}
	},
}

var listSeriesVideosCmd = &cobra.Command{
	Use:   "list-series-videos <uid> <collection-id>",
	Short: "List the members of a season or series",
	Long: `List every video inside a season or series.

The collection type is detected automatically by probing both API
schemes. Pass --type season or --type series to skip detection.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		id := parseID(args[1])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		items, resolved, err := m.ListCollectionVideos(ctx, uid, id, collection.Type(listCollectionType))
		if err != nil {
			fatal("failed to list collection videos", err)
		}

		fmt.Printf("Collection %d (%s): %d videos\n\n", id, resolved, len(items))
		for i, item := range items {
			fmt.Printf("%4d. [%s] %s\n", i+1, item.Bvid, item.Title)
			fmt.Printf("      duration: %s  views: %d  published: %s\n",
				formatDuration(item.Duration), item.View, formatUnix(item.Pubdate))
		}
	},
}

var listDynamicsCmd = &cobra.Command{
	Use:   "list-dynamics <uid>",
	Short: "List a user's recent moments",
	Long: `List a user's moments, newest first.

Without --limit, at most ten feed pages are walked so a deep feed does
not take forever to preview. Use 'dynamics crawl' to fetch everything.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uid := parseUID(args[0])
		m := newManager()

		ctx, cancel := commandContext()
		defer cancel()

		items, err := m.ListDynamics(ctx, uid, listDynamicsLimit)
		if err != nil {
			fatal("failed to list dynamics", err)
		}

		fmt.Printf("Found %d moments:\n\n", len(items))
		for i, item := range items {
			fmt.Printf("%4d. %s  %s\n", i+1, item.IDStr, item.Type)
		}
	},
}

func init() {
	rootCmd.AddCommand(listVideosCmd)
	rootCmd.AddCommand(listSeriesCmd)
	rootCmd.AddCommand(listSeriesVideosCmd)
	rootCmd.AddCommand(listDynamicsCmd)

	listSeriesVideosCmd.Flags().StringVar(&listCollectionType, "type", "auto", "collection type (auto, season, series)")
	listDynamicsCmd.Flags().IntVar(&listDynamicsLimit, "limit", 0, "maximum moments to list (0 walks up to 10 pages)")
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
