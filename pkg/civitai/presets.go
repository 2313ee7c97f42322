package civitai

import (
	"civharvest/pkg/models"
)

// Browsing level flags. A browsing level is the OR of the ratings it admits.
const (
	LevelPG      = 1
	LevelPG13    = 2
	LevelR       = 4
	LevelX       = 8
	LevelXXX     = 16
	LevelAllNSFW = 32
)

var levelNames = []struct {
	flag int
	name string
}{
	{LevelPG, "PG"},
	{LevelPG13, "PG-13"},
	{LevelR, "R"},
	{LevelX, "X"},
	{LevelXXX, "XXX"},
	{LevelAllNSFW, "All NSFW"},
}

// ExplainBrowsingLevel lists the rating names enabled by level.
func ExplainBrowsingLevel(level int) []string {
	var names []string
	for _, l := range levelNames {
		if level&l.flag != 0 {
			names = append(names, l.name)
		}
	}
	return names
}

// FindPreset returns the preset of the given type, or the first preset
// when none matches. ok is false only when presets is empty.
func FindPreset(presets []models.BrowsingPreset, presetType string) (preset models.BrowsingPreset, exact bool, ok bool) {
	if len(presets) == 0 {
		return models.BrowsingPreset{}, false, false
	}
	for _, p := range presets {
		if p.Type == presetType {
			return p, true, true
		}
	}
	return presets[0], false, true
}

// ApplyPreset overlays the fields a preset defines onto prefs. The
// preset's nsfwLevels combine into a single browsing level.
func ApplyPreset(prefs BrowsingPrefs, preset models.BrowsingPreset) BrowsingPrefs {
	if len(preset.NsfwLevels) > 0 {
		level := 0
		for _, l := range preset.NsfwLevels {
			level |= l
		}
		prefs.BrowsingLevel = level
	}
	if preset.ExcludedTagIDs != nil {
		prefs.ExcludedTagIDs = append([]int(nil), preset.ExcludedTagIDs...)
	}
	if preset.DisablePoi != nil {
		prefs.DisablePoi = *preset.DisablePoi
	}
	if preset.DisableMinor != nil {
		prefs.DisableMinor = *preset.DisableMinor
	}
	return prefs
}
