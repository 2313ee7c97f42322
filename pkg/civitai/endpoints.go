package civitai

import (
	"fmt"
	"net/url"

	"civharvest/pkg/config"
)

// tRPC procedures used by the harvester.
const (
	ProcImageInfinite    = "image.getInfinite"
	ProcGenerationData   = "image.getGenerationData"
	ProcVotableTags      = "tag.getVotableTags"
	ProcImageGet         = "image.get"
	ProcCollectionByID   = "collection.getById"
	ProcBrowsingAddons   = "system.getBrowsingSettingAddons"
	ProcModelVersionByID = "modelVersion.getById"
)

const (
	SiteURL        = "https://civitai.com"
	ArchiveSiteURL = "https://civitaiarchive.com"

	// DefaultPresetType is the browsing preset picked when none is named.
	DefaultPresetType = "some"
)

// BrowsingPrefs are the filter fields sent with every collection page.
type BrowsingPrefs struct {
	Period         string
	Sort           string
	BrowsingLevel  int
	Include        []string
	ExcludedTagIDs []int
	DisablePoi     bool
	DisableMinor   bool
}

// DefaultBrowsingPrefs mirrors what the web client sends.
func DefaultBrowsingPrefs() BrowsingPrefs {
	return PrefsFromConfig(config.DefaultConfig().Harvest)
}

// PrefsFromConfig copies browsing preferences out of the harvest section.
func PrefsFromConfig(cfg config.HarvestConfig) BrowsingPrefs {
	include := cfg.Include
	if len(include) == 0 {
		include = []string{"cosmetics"}
	}
	return BrowsingPrefs{
		Period:         cfg.Period,
		Sort:           cfg.Sort,
		BrowsingLevel:  cfg.BrowsingLevel,
		Include:        append([]string(nil), include...),
		ExcludedTagIDs: append([]int(nil), cfg.ExcludedTagIDs...),
		DisablePoi:     cfg.DisablePoi,
		DisableMinor:   cfg.DisableMinor,
	}
}

// CollectionPayload builds the image.getInfinite input for one page. A nil
// cursor requests the first page.
func CollectionPayload(collectionID int64, prefs BrowsingPrefs, cursor any) Payload {
	excluded := prefs.ExcludedTagIDs
	if excluded == nil {
		excluded = []int{}
	}
	include := prefs.Include
	if include == nil {
		include = []string{}
	}
	return Payload{
		"period":         prefs.Period,
		"sort":           prefs.Sort,
		"browsingLevel":  prefs.BrowsingLevel,
		"include":        include,
		"excludedTagIds": excluded,
		"disablePoi":     prefs.DisablePoi,
		"disableMinor":   prefs.DisableMinor,
		"collectionId":   collectionID,
		"cursor":         cursor,
		"authed":         true,
	}
}

// IDPayload is the {id, authed} input shared by the lookup procedures.
func IDPayload(id int64) Payload {
	return Payload{"id": id, "authed": true}
}

// VotableTagsPayload is the tag.getVotableTags input for an image.
func VotableTagsPayload(imageID int64) Payload {
	return Payload{"id": imageID, "type": "image", "authed": true}
}

// ModelURL returns the civitai page of a model, pinned to a version when
// versionID is non-zero.
func ModelURL(modelID, versionID int64) string {
	return modelLink(SiteURL, modelID, versionID)
}

// ArchiveURL is ModelURL on the archive mirror.
func ArchiveURL(modelID, versionID int64) string {
	return modelLink(ArchiveSiteURL, modelID, versionID)
}

func modelLink(site string, modelID, versionID int64) string {
	link := fmt.Sprintf("%s/models/%d", site, modelID)
	if versionID != 0 {
		params := url.Values{}
		params.Set("modelVersionId", fmt.Sprint(versionID))
		link += "?" + params.Encode()
	}
	return link
}

// ImagePageURL is the public page of an image.
func ImagePageURL(imageID int64) string {
	return fmt.Sprintf("%s/images/%d", SiteURL, imageID)
}

// CollectionPageURL is the public page of a collection.
func CollectionPageURL(collectionID int64) string {
	return fmt.Sprintf("%s/collections/%d", SiteURL, collectionID)
}
