package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"civharvest/pkg/civitai"
	"civharvest/pkg/records"
	"civharvest/pkg/ui"

	"github.com/spf13/cobra"
)

var modelIDFlag int64

// collectionCmd represents the collection command
var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Inspect collections",
}

var collectionInfoCmd = &cobra.Command{
	Use:   "info <collection-id>",
	Short: "Show collection metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionInfo,
}

// imageCmd represents the image command
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Inspect single images",
}

var imageInspectCmd = &cobra.Command{
	Use:   "inspect <image-id>",
	Short: "Print the merged record of one image as JSON",
	Long: `Fetch basic info, generation data and tags of one image and print the
merged record on stdout, in the same shape the harvest writes.`,
	Example: `  civharvest image inspect 42424242 | jq .prompt`,
	Args:    cobra.ExactArgs(1),
	RunE:    runImageInspect,
}

// modelCmd represents the model command
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect models",
}

var modelCheckCmd = &cobra.Command{
	Use:   "check <version-id>",
	Short: "Check whether a model version is still on civitai",
	Long: `Look a model version up and report whether it is available, deleted or
gone. Links to the civitai page and the archive mirror are printed either way.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelCheck,
}

// presetsCmd represents the presets command
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the account's browsing presets",
	Args:  cobra.NoArgs,
	RunE:  runPresets,
}

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(collectionInfoCmd)
	rootCmd.AddCommand(imageCmd)
	imageCmd.AddCommand(imageInspectCmd)
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelCheckCmd)
	rootCmd.AddCommand(presetsCmd)

	modelCheckCmd.Flags().Int64Var(&modelIDFlag, "model-id", 0, "model id for the links (read from the response when omitted)")
}

func openSession(cmd *cobra.Command, requireAuth bool) (*session, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	log, err := setupLogger(cfg, false)
	if err != nil {
		return nil, err
	}
	return connect(cmd.Context(), cfg, log, requireAuth)
}

func runCollectionInfo(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "collection")
	if err != nil {
		return err
	}
	sess, err := openSession(cmd, false)
	if err != nil {
		return err
	}

	info, err := sess.api.Collection(cmd.Context(), id)
	if err != nil {
		return err
	}

	ui.PrintInfo("Collection", fmt.Sprintf("%d", info.ID))
	ui.PrintInfo("Name", info.Name)
	if info.Owner != "" {
		ui.PrintInfo("Owner", info.Owner)
	}
	if info.Type != "" {
		ui.PrintInfo("Type", info.Type)
	}
	if info.Read != "" {
		ui.PrintInfo("Visibility", info.Read)
	}
	if info.Description != "" {
		ui.PrintInfo("Description", ui.Truncate(info.Description, 200))
	}
	ui.PrintInfo("URL", civitai.CollectionPageURL(info.ID))
	return nil
}

func runImageInspect(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "image")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg, false)
	if err != nil {
		return err
	}
	sess, err := connect(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	basic, err := sess.api.ImageBasic(ctx, id)
	if err != nil {
		return err
	}
	detail, err := sess.api.GenerationData(ctx, id)
	if err != nil {
		return err
	}

	rec := records.NewMerger(cfg.API.ImageCDNBase).MergeSingle(basic, detail)
	if cfg.Harvest.FetchTags {
		tags, err := sess.api.VotableTags(ctx, id)
		if err != nil {
			log.WithError(err).Warn("tag lookup failed")
		} else {
			rec = rec.WithTags(civitai.TagNames(tags))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rec)
}

func runModelCheck(cmd *cobra.Command, args []string) error {
	versionID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || versionID < 0 {
		return fmt.Errorf("invalid model version id %q", args[0])
	}
	sess, err := openSession(cmd, false)
	if err != nil {
		return err
	}

	av := sess.api.CheckModelAvailability(cmd.Context(), modelIDFlag, versionID)
	switch av.Status {
	case civitai.StatusAvailable:
		ui.PrintSuccess("Model version is available")
	case civitai.StatusDeleted, civitai.StatusNotFound:
		ui.PrintWarning("Model version is gone", av.Error)
	default:
		ui.PrintWarning("Availability unknown", av.Error)
	}
	if av.ModelStatus != "" {
		ui.PrintInfo("Model status", av.ModelStatus)
	}
	if av.ModelID != 0 {
		ui.PrintInfo("Civitai", av.CivitaiURL)
		ui.PrintInfo("Archive", av.ArchiveURL)
	}
	if av.Status == civitai.StatusError {
		return fmt.Errorf("availability check failed: %s", av.Error)
	}
	return nil
}

func runPresets(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd, true)
	if err != nil {
		return err
	}

	presets, err := sess.api.BrowsingPresets(cmd.Context())
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		ui.PrintInfo("Browsing presets", "none")
		return nil
	}

	ui.PrintHighlight("Browsing presets")
	for _, p := range presets {
		prefs := civitai.ApplyPreset(civitai.BrowsingPrefs{}, p)
		fmt.Printf("  %s  level %d (%s)\n",
			ui.Cyan(p.Type),
			prefs.BrowsingLevel,
			strings.Join(civitai.ExplainBrowsingLevel(prefs.BrowsingLevel), ", "),
		)
		if len(p.ExcludedTagIDs) > 0 {
			fmt.Printf("      %s %d excluded tags\n", ui.Dim("•"), len(p.ExcludedTagIDs))
		}
	}
	fmt.Println("\nUse one with: civharvest harvest <collection-id> --preset <type>")
	return nil
}
