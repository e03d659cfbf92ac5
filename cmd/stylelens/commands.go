package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/stylelens/internal/api"
	"github.com/kalambet/stylelens/internal/config"
	"github.com/kalambet/stylelens/internal/feed"
	"github.com/kalambet/stylelens/internal/fetch"
	"github.com/kalambet/stylelens/internal/look"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|url>",
	Short: "Analyze an outfit photo",
	Long: `Analyze an outfit photo from a local file or a URL.

A URL may point at an image or at a page that declares one with og:image.

Examples:
  stylelens analyze ./street.jpg
  stylelens analyze https://images.unsplash.com/photo-1534528741775-53994a69daeb
  stylelens analyze --no-wait ./street.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noWait, _ := cmd.Flags().GetBool("no-wait")

		path, body, err := analyzeRequest(args[0], !noWait)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if !noWait {
			client = client.slow()
			printStep("Analyzing %s...", args[0])
			if tip := stylistTip(cmd, client); tip != "" {
				printStatus("Stylist tip", "%s", tip)
			}
		}

		resp, err := client.post(cmd.Context(), path, body)
		if err != nil {
			return err
		}

		var out api.AnalyzeResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Result == nil {
			printSuccess("Analysis started; check progress with 'stylelens state'")
			return nil
		}
		printResult(*out.Result)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("no-wait", false, "start the analysis and return immediately")
}

// analyzeRequest picks the endpoint and body for target. URLs are fetched
// by the server; anything else is read as a local image file.
func analyzeRequest(target string, wait bool) (string, any, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return "/api/fetch", api.FetchRequest{URL: target, Wait: wait}, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", nil, fmt.Errorf("reading image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", nil, fmt.Errorf("%s is not an image (detected %s)", target, mediaType)
	}
	return "/api/analyze", api.AnalyzeRequest{Image: fetch.EncodeDataURI(mediaType, data), Wait: wait}, nil
}

// stylistTip returns a random tip from the server's feed, or "" when the
// feed cannot be read.
func stylistTip(cmd *cobra.Command, client *apiClient) string {
	resp, err := client.get(cmd.Context(), "/api/feed")
	if err != nil {
		return ""
	}
	var f feed.Feed
	if err := decodeJSON(resp, &f); err != nil {
		return ""
	}
	return f.Tip()
}

// --- state ---

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the current application state",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchState(cmd.Context(), client)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		usePalette(st.Theme)
		printStatus("View", "%s", st.ActiveView)
		printStatus("Theme", "%s", st.Theme)
		if st.CurrentImage != "" {
			printStatus("Image", "%s", look.DescribeImage(st.CurrentImage))
		}
		switch {
		case st.IsLoading:
			printStatus("Analysis", "in progress")
		case st.CurrentError != "":
			printStatus("Analysis", "failed")
			printError("%s", st.CurrentError)
		case st.CurrentResult != nil:
			printStatus("Analysis", "done")
		}
		printStatus("Wardrobe", "%d saved", len(st.Wardrobe))
		printStatus("History", "%d recent", len(st.History))

		if showStorage, _ := cmd.Flags().GetBool("storage"); showStorage {
			if err := printStorage(cmd.Context(), client); err != nil {
				return err
			}
		}

		if st.CurrentResult != nil && !st.IsLoading {
			fmt.Fprintln(stdout)
			printResult(*st.CurrentResult)
		}
		return nil
	},
}

func printStorage(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/api/storage")
	if err != nil {
		return err
	}
	var info api.StorageResponse
	if err := decodeJSON(resp, &info); err != nil {
		return err
	}
	printStatus("Schema", "v%d", info.SchemaVersion)
	for _, sl := range info.Slots {
		printStatus("Slot "+sl.Key, "%d bytes, updated %s", sl.Bytes, sl.UpdatedAt.Local().Format("Jan 2, 2006 15:04"))
	}
	return nil
}

func init() {
	stateCmd.Flags().Bool("json", false, "print the raw state as JSON")
	stateCmd.Flags().Bool("storage", false, "also show the schema version and persisted slots")
}

// --- wardrobe ---

var wardrobeCmd = &cobra.Command{
	Use:   "wardrobe",
	Short: "Manage saved looks",
}

var wardrobeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved looks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchState(cmd.Context(), client)
		if err != nil {
			return err
		}
		usePalette(st.Theme)

		if len(st.Wardrobe) == 0 {
			fmt.Fprintln(stdout, "Your wardrobe is empty. Analyze a look and save it to start your collection.")
			return nil
		}
		for _, item := range st.Wardrobe {
			fmt.Fprintf(stdout, "%s  %s\n", colorize(colors.label, true, item.ID), colorize(colors.muted, false, item.SavedAt().Format("Jan 2, 2006")))
			fmt.Fprintf(stdout, "  %s\n", strings.ReplaceAll(item.Snippet(100), "\n", " "))
		}
		return nil
	},
}

var wardrobeSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the current analysis to the wardrobe",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/wardrobe", nil)
		if err != nil {
			return err
		}

		var out api.SaveResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if !out.Saved {
			printWarning("%s", out.Notice)
			return nil
		}
		printSuccess("Saved look %s", out.Item.ID)
		return nil
	},
}

var wardrobeRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a saved look",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/wardrobe/"+args[0])
		if err != nil {
			return err
		}

		var out map[string]bool
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if !out["removed"] {
			printWarning("No saved look with id %s", args[0])
			return nil
		}
		printSuccess("Removed look %s", args[0])
		return nil
	},
}

var wardrobeOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Show a saved look and make it the current analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/wardrobe/"+args[0]+"/open", nil)
		if err != nil {
			return err
		}

		var item look.WardrobeItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printResult(item.Analysis)
		return nil
	},
}

func init() {
	wardrobeCmd.AddCommand(wardrobeListCmd)
	wardrobeCmd.AddCommand(wardrobeSaveCmd)
	wardrobeCmd.AddCommand(wardrobeRemoveCmd)
	wardrobeCmd.AddCommand(wardrobeOpenCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Recent scans",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchState(cmd.Context(), client)
		if err != nil {
			return err
		}
		usePalette(st.Theme)

		if len(st.History) == 0 {
			fmt.Fprintln(stdout, "No recent scans.")
			return nil
		}
		for i, img := range st.History {
			fmt.Fprintf(stdout, "%s %s\n", colorize(colors.label, true, fmt.Sprintf("[%d]", i)), look.DescribeImage(img))
		}
		return nil
	},
}

var historyRescanCmd = &cobra.Command{
	Use:   "rescan <index>",
	Short: "Analyze a recent scan again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Analyzing scan %s...", args[0])
		resp, err := client.slow().post(cmd.Context(), "/api/history/"+args[0]+"?wait=true", nil)
		if err != nil {
			return err
		}

		var out api.AnalyzeResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Result != nil {
			printResult(*out.Result)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all recent scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/history")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRescanCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- view / theme ---

var viewCmd = &cobra.Command{
	Use:       "view <search|feed|wardrobe>",
	Short:     "Switch the web UI to another view",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(look.ViewSearch), string(look.ViewFeed), string(look.ViewWardrobe)},
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := look.ParseView(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/api/view", map[string]look.View{"view": v})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Switched to %s", v)
		return nil
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Color theme",
}

var themeToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Switch between light and dark themes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/theme/toggle", nil)
		if err != nil {
			return err
		}

		var out map[string]look.Theme
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		usePalette(out["theme"])
		printSuccess("Theme is now %s", out["theme"])
		return nil
	},
}

func init() {
	themeCmd.AddCommand(themeToggleCmd)
}

// --- feed ---

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List inspiration looks",
	Long: `List inspiration looks from the feed.

Examples:
  stylelens feed
  stylelens feed --tag streetwear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/feed")
		if err != nil {
			return err
		}

		var f feed.Feed
		if err := decodeJSON(resp, &f); err != nil {
			return err
		}

		shown := 0
		for _, l := range f.Looks {
			if tag != "" && !hasTag(l, tag) {
				continue
			}
			shown++
			fmt.Fprintln(stdout, l.URL)
			if len(l.Tags) > 0 {
				fmt.Fprintf(stdout, "  %s\n", colorize(colors.muted, false, strings.Join(l.Tags, ", ")))
			}
		}
		if shown == 0 {
			printWarning("No looks tagged %q", tag)
		}
		return nil
	},
}

func hasTag(l feed.Look, tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func init() {
	feedCmd.Flags().String("tag", "", "only show looks with this tag")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s %s\n", colorize(colors.label, true, k.Key), k.Value, colorize(colors.muted, false, "("+k.EnvVar+")"))
		}
		fmt.Fprintf(stdout, "\nConfig file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file.\n\nKeys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
