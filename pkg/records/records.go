// Package records merges a collection list item with its generation data
// into the flat record that gets exported.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"civharvest/pkg/models"
	"civharvest/pkg/resources"
)

// DefaultCDNBase is the image CDN prefix used to build full image URLs.
const DefaultCDNBase = "https://image.civitai.com/xG1nkqKTMzGDvpLrqFT7WA"

// MergedRecord is one harvested image. Treat it as read-only once built;
// WithTags returns a modified copy.
type MergedRecord struct {
	ImageID     int64
	URL         string
	URLHash     string
	Filename    string
	MimeType    string
	Author      string
	CreatedAt   string
	PublishedAt string
	Nsfw        bool
	NsfwLevel   int

	Model          string
	ModelVersion   string
	ModelID        int64
	ModelVersionID int64
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

	Loras      []resources.Lora
	Models     []resources.Model
	Embeddings []resources.Embedding
	Tags       []string
}

// Merger builds records against a configurable CDN base.
type Merger struct {
	cdnBase string
}

// NewMerger returns a Merger; an empty cdnBase means DefaultCDNBase.
func NewMerger(cdnBase string) *Merger {
	if cdnBase == "" {
		cdnBase = DefaultCDNBase
	}
	return &Merger{cdnBase: strings.TrimRight(cdnBase, "/")}
}

var defaultMerger = NewMerger("")

// Merge combines a list item with its generation data using the default
// CDN base.
func Merge(item models.ListItem, detail models.DetailRecord) *MergedRecord {
	return defaultMerger.Merge(item, detail)
}

// Merge combines a collection list item with its generation data.
func (m *Merger) Merge(item models.ListItem, detail models.DetailRecord) *MergedRecord {
	rec := m.base(item)
	rec.Author = ResolveAuthor(item)
	applyDetail(rec, detail)
	return rec
}

// MergeSingle combines the image.get basic info of a single image with
// its generation data. Basic info nests the author under user first.
func (m *Merger) MergeSingle(basic models.ListItem, detail models.DetailRecord) *MergedRecord {
	rec := m.base(basic)
	rec.Author = firstNonEmpty(basic.UserUsername, basic.Username)
	applyDetail(rec, detail)
	return rec
}

func (m *Merger) base(item models.ListItem) *MergedRecord {
	mime := item.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &MergedRecord{
		ImageID:      item.ID,
		URL:          m.ImageURL(item.URL, item.Name, mime),
		URLHash:      item.URL,
		Filename:     NormalizeFilename(item.Name, mime),
		MimeType:     mime,
		CreatedAt:    item.CreatedAt,
		PublishedAt:  item.PublishedAt,
		Nsfw:         item.NsfwLevel > 0,
		NsfwLevel:    item.NsfwLevel,
		Model:        models.Unknown,
		ModelVersion: models.Unknown,
		BaseModel:    models.Unknown,
		Sampler:      models.Unknown,
		Process:      "unknown",
		Engine:       "unknown",
		Loras:        []resources.Lora{},
		Models:       []resources.Model{},
		Embeddings:   []resources.Embedding{},
		Tags:         []string{},
	}
}

func applyDetail(rec *MergedRecord, detail models.DetailRecord) {
	meta := detail.Meta
	rec.BaseModel = orUnknown(meta.BaseModel)
	rec.Sampler = orUnknown(meta.Sampler)
	rec.Steps = meta.Steps
	rec.CfgScale = meta.CfgScale
	rec.Seed = meta.Seed
	rec.Width = meta.Width
	rec.Height = meta.Height
	rec.Prompt = meta.Prompt
	rec.NegativePrompt = meta.NegativePrompt
	if meta.Process != "" {
		rec.Process = meta.Process
	}
	if meta.Engine != "" {
		rec.Engine = meta.Engine
	}
	rec.ClipSkip = meta.ClipSkip
	rec.Workflow = meta.Workflow
	rec.Draft = meta.Draft

	ex := resources.Extract(detail.Resources)
	if ex.Primary != nil {
		rec.Model = orUnknown(ex.Primary.Name)
		rec.ModelVersion = orUnknown(ex.Primary.Version)
		rec.ModelID = ex.Primary.ModelID
		rec.ModelVersionID = ex.Primary.ModelVersionID
	}
	if ex.Models != nil {
		rec.Models = ex.Models
	}
	if ex.Loras != nil {
		rec.Loras = ex.Loras
	}
	if ex.Embeddings != nil {
		rec.Embeddings = ex.Embeddings
	}
}

// WithTags returns a copy of r carrying tags.
func (r *MergedRecord) WithTags(tags []string) *MergedRecord {
	cp := *r
	cp.Tags = append([]string{}, tags...)
	return &cp
}

// ResolveAuthor picks the first non-empty of the list username, the nested
// user and the nested account, falling back to "Unknown".
func ResolveAuthor(item models.ListItem) string {
	return firstNonEmpty(item.Username, item.UserUsername, item.AccountUsername)
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return models.Unknown
}

func orUnknown(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}

// ExtensionForMIME maps a MIME type to a file extension, ".jpeg" when the
// type is empty or unrecognized.
func ExtensionForMIME(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case strings.Contains(m, "png"):
		return ".png"
	case strings.Contains(m, "webp"):
		return ".webp"
	case strings.Contains(m, "tif"):
		return ".tif"
	case strings.Contains(m, "mp4"):
		return ".mp4"
	default:
		return ".jpeg"
	}
}

// NormalizeFilename makes the extension of name agree with mime. A missing
// extension is appended, a matching one (any case) kept, and a mismatched
// one replaced.
func NormalizeFilename(name, mime string) string {
	if name == "" {
		name = "unknown"
	}
	want := ExtensionForMIME(mime)

	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return name + want
	}
	if strings.EqualFold(name[dot:], want) {
		return name
	}
	return name[:dot] + want
}

// ImageURL builds the full CDN URL using DefaultCDNBase.
func ImageURL(hash, name, mime string) string {
	return defaultMerger.ImageURL(hash, name, mime)
}

// ImageURL builds the full CDN URL of an image. hash may already be an
// absolute URL, in which case it is returned unchanged.
func (m *Merger) ImageURL(hash, name, mime string) string {
	if hash == "" {
		return ""
	}
	if strings.HasPrefix(hash, "http://") || strings.HasPrefix(hash, "https://") {
		return hash
	}
	return fmt.Sprintf("%s/%s/original=true/quality=90/%s", m.cdnBase, hash, NormalizeFilename(name, mime))
}

// ToMap flattens the record for JSON and SQL export. Nil values and the
// "Unknown" placeholder are left out.
func (r *MergedRecord) ToMap() map[string]any {
	out := map[string]any{
		"image_id":        r.ImageID,
		"url":             r.URL,
		"url_hash":        r.URLHash,
		"filename":        r.Filename,
		"mime_type":       r.MimeType,
		"author":          r.Author,
		"nsfw":            r.Nsfw,
		"nsfw_level":      r.NsfwLevel,
		"model":           r.Model,
		"model_version":   r.ModelVersion,
		"base_model":      r.BaseModel,
		"sampler":         r.Sampler,
		"steps":           r.Steps,
		"cfg_scale":       r.CfgScale,
		"seed":            r.Seed,
		"width":           r.Width,
		"height":          r.Height,
		"prompt":          r.Prompt,
		"negative_prompt": r.NegativePrompt,
		"process":         r.Process,
		"engine":          r.Engine,
		"loras":           r.Loras,
		"models":          r.Models,
		"embeddings":      r.Embeddings,
		"tags":            r.Tags,
	}
	if r.CreatedAt != "" {
		out["created_at"] = r.CreatedAt
	}
	if r.PublishedAt != "" {
		out["published_at"] = r.PublishedAt
	}
	if r.ModelID != 0 {
		out["model_id"] = r.ModelID
	}
	if r.ModelVersionID != 0 {
		out["model_version_id"] = r.ModelVersionID
	}
	if r.ClipSkip != nil {
		out["clip_skip"] = *r.ClipSkip
	}
	if r.Workflow != nil {
		out["workflow"] = *r.Workflow
	}
	if r.Draft != nil {
		out["draft"] = *r.Draft
	}

	for k, v := range out {
		if s, ok := v.(string); ok && s == models.Unknown {
			delete(out, k)
		}
	}
	return out
}

// exportKeys is the key order of an encoded record.
var exportKeys = []string{
	"image_id", "url", "url_hash", "filename", "mime_type", "author",
	"created_at", "published_at", "nsfw", "nsfw_level",
	"model", "model_version", "model_id", "model_version_id", "base_model",
	"sampler", "steps", "cfg_scale", "seed", "width", "height", "clip_skip",
	"prompt", "negative_prompt", "process", "engine", "workflow", "draft",
	"loras", "models", "embeddings", "tags",
}

// MarshalJSON encodes the flat ToMap form with keys in exportKeys order.
func (r *MergedRecord) MarshalJSON() ([]byte, error) {
	m := r.ToMap()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range exportKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatLoras renders loras as "name (w:0.80), ...".
func FormatLoras(loras []resources.Lora) string {
	if len(loras) == 0 {
		return "No LoRAs used"
	}
	parts := make([]string, 0, len(loras))
	for _, l := range loras {
		parts = append(parts, fmt.Sprintf("%s (w:%.2f)", l.Name, l.Weight))
	}
	return strings.Join(parts, ", ")
}
