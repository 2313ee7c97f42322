package models

import (
	"github.com/tidwall/gjson"
)

// Unknown is the placeholder used for missing names and identities.
const Unknown = "Unknown"

// ListItem is one entry of a collection page (image.getInfinite) or the
// basic info returned by image.get.
type ListItem struct {
	ID              int64
	URL             string // CDN hash, occasionally a full URL
	Name            string
	MimeType        string
	Username        string
	UserUsername    string
	AccountUsername string
	CreatedAt       string
	PublishedAt     string
	NsfwLevel       int
	Raw             gjson.Result
}

// ListItemFromJSON reads a ListItem from a decoded item object.
func ListItemFromJSON(r gjson.Result) ListItem {
	return ListItem{
		ID:              r.Get("id").Int(),
		URL:             r.Get("url").String(),
		Name:            r.Get("name").String(),
		MimeType:        r.Get("mimeType").String(),
		Username:        r.Get("username").String(),
		UserUsername:    r.Get("user.username").String(),
		AccountUsername: r.Get("account.username").String(),
		CreatedAt:       r.Get("createdAt").String(),
		PublishedAt:     r.Get("publishedAt").String(),
		NsfwLevel:       int(r.Get("nsfwLevel").Int()),
		Raw:             r,
	}
}

// ListItemsFromJSON converts an item array.
func ListItemsFromJSON(items []gjson.Result) []ListItem {
	out := make([]ListItem, 0, len(items))
	for _, it := range items {
		out = append(out, ListItemFromJSON(it))
	}
	return out
}

// GenerationMeta is the "meta" block of image.getGenerationData. Optional
// fields are nil when the response omits them.
type GenerationMeta struct {
	BaseModel      string
	Sampler        string
	Steps          int
	CfgScale       float64
	Seed           int64
	Width          int
	Height         int
	Prompt         string
	NegativePrompt string
	Process        string
	Engine         string
	ClipSkip       *int
	Workflow       *string
	Draft          *bool
}

// Resource is one generation resource (checkpoint, LoRA, embedding, ...).
type Resource struct {
	ModelType      string
	Type           string
	ModelName      string
	ModelID        int64 // the resource "id"
	ModelVersionID int64
	Strength       *float64
	VersionName    string
	BaseModel      string
	ClipWeight     *float64
}

// DetailRecord is the response of image.getGenerationData.
type DetailRecord struct {
	Meta      GenerationMeta
	Resources []Resource
	Raw       gjson.Result
}

func stringOr(r gjson.Result, fallback string) string {
	if !r.Exists() || r.Type == gjson.Null {
		return fallback
	}
	return r.String()
}

func optFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

// DetailFromJSON reads a DetailRecord from the decoded generation data.
func DetailFromJSON(r gjson.Result) DetailRecord {
	meta := r.Get("meta")
	m := GenerationMeta{
		BaseModel:      stringOr(meta.Get("baseModel"), Unknown),
		Sampler:        stringOr(meta.Get("sampler"), Unknown),
		Steps:          int(meta.Get("steps").Int()),
		CfgScale:       meta.Get("cfgScale").Float(),
		Seed:           meta.Get("seed").Int(),
		Width:          int(meta.Get("width").Int()),
		Height:         int(meta.Get("height").Int()),
		Prompt:         meta.Get("prompt").String(),
		NegativePrompt: meta.Get("negativePrompt").String(),
		Process:        stringOr(meta.Get("process"), "unknown"),
		Engine:         stringOr(meta.Get("engine"), "unknown"),
	}
	if v := meta.Get("clipSkip"); v.Type == gjson.Number {
		n := int(v.Int())
		m.ClipSkip = &n
	}
	if v := meta.Get("workflow"); v.Exists() && v.Type != gjson.Null {
		s := v.String()
		m.Workflow = &s
	}
	if v := meta.Get("draft"); isBool(v) {
		b := v.Bool()
		m.Draft = &b
	}

	var resources []Resource
	r.Get("resources").ForEach(func(_, res gjson.Result) bool {
		resources = append(resources, ResourceFromJSON(res))
		return true
	})

	return DetailRecord{Meta: m, Resources: resources, Raw: r}
}

// ResourceFromJSON reads a single resource entry.
func ResourceFromJSON(r gjson.Result) Resource {
	return Resource{
		ModelType:      r.Get("modelType").String(),
		Type:           r.Get("type").String(),
		ModelName:      stringOr(r.Get("modelName"), Unknown),
		ModelID:        r.Get("id").Int(),
		ModelVersionID: r.Get("modelVersionId").Int(),
		Strength:       optFloat(r.Get("strength")),
		VersionName:    r.Get("versionName").String(),
		BaseModel:      stringOr(r.Get("baseModel"), Unknown),
		ClipWeight:     optFloat(r.Get("clipWeight")),
	}
}

// Tag is a votable tag attached to an image.
type Tag struct {
	ID    int64
	Name  string
	Type  string
	Score float64
}

// TagsFromJSON reads the tag.getVotableTags array.
func TagsFromJSON(r gjson.Result) []Tag {
	var tags []Tag
	r.ForEach(func(_, t gjson.Result) bool {
		tags = append(tags, Tag{
			ID:    t.Get("id").Int(),
			Name:  t.Get("name").String(),
			Type:  t.Get("type").String(),
			Score: t.Get("score").Float(),
		})
		return true
	})
	return tags
}

// CollectionInfo is the "collection" object of collection.getById.
type CollectionInfo struct {
	ID          int64
	Name        string
	Description string
	Type        string
	Read        string
	Write       string
	Owner       string
	Raw         gjson.Result
}

// CollectionFromJSON reads collection metadata.
func CollectionFromJSON(r gjson.Result) CollectionInfo {
	return CollectionInfo{
		ID:          r.Get("id").Int(),
		Name:        r.Get("name").String(),
		Description: r.Get("description").String(),
		Type:        r.Get("type").String(),
		Read:        r.Get("read").String(),
		Write:       r.Get("write").String(),
		Owner:       r.Get("user.username").String(),
		Raw:         r,
	}
}

// BrowsingPreset is one entry of system.getBrowsingSettingAddons.
type BrowsingPreset struct {
	Type           string
	NsfwLevels     []int
	ExcludedTagIDs []int
	DisablePoi     *bool
	DisableMinor   *bool
	Raw            gjson.Result
}

func intSlice(r gjson.Result) []int {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]int, 0, len(arr))
	for _, v := range arr {
		out = append(out, int(v.Int()))
	}
	return out
}

func isBool(r gjson.Result) bool {
	return r.Type == gjson.True || r.Type == gjson.False
}

func optBool(r gjson.Result) *bool {
	if !isBool(r) {
		return nil
	}
	b := r.Bool()
	return &b
}

// PresetsFromJSON reads the browsing setting addon list.
func PresetsFromJSON(r gjson.Result) []BrowsingPreset {
	var presets []BrowsingPreset
	r.ForEach(func(_, p gjson.Result) bool {
		presets = append(presets, BrowsingPreset{
			Type:           p.Get("type").String(),
			NsfwLevels:     intSlice(p.Get("nsfwLevels")),
			ExcludedTagIDs: intSlice(p.Get("excludedTagIds")),
			DisablePoi:     optBool(p.Get("disablePoi")),
			DisableMinor:   optBool(p.Get("disableMinor")),
			Raw:            p,
		})
		return true
	})
	return presets
}

// ModelVersion is the subset of modelVersion.getById used for
// availability checks.
type ModelVersion struct {
	ID          int64
	Name        string
	BaseModel   string
	ModelID     int64
	ModelName   string
	ModelStatus string
	Raw         gjson.Result
}

// ModelVersionFromJSON reads a model version response.
func ModelVersionFromJSON(r gjson.Result) ModelVersion {
	return ModelVersion{
		ID:          r.Get("id").Int(),
		Name:        r.Get("name").String(),
		BaseModel:   r.Get("baseModel").String(),
		ModelID:     r.Get("model.id").Int(),
		ModelName:   r.Get("model.name").String(),
		ModelStatus: stringOr(r.Get("model.status"), Unknown),
		Raw:         r,
	}
}
