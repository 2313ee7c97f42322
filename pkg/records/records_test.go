package records

import (
	"encoding/json"
	"testing"

	"civharvest/pkg/models"
	"civharvest/pkg/resources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtensionForMIME(t *testing.T) {
	tests := map[string]string{
		"image/png":  ".png",
		"IMAGE/PNG":  ".png",
		"image/webp": ".webp",
		"image/tiff": ".tif",
		"image/tif":  ".tif",
		"video/mp4":  ".mp4",
		"image/jpeg": ".jpeg",
		"image/jpg":  ".jpeg",
		"image/gif":  ".jpeg",
		"":           ".jpeg",
	}
	for mime, want := range tests {
		assert.Equal(t, want, ExtensionForMIME(mime), mime)
	}
}

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		name, mime, want string
	}{
		{"image", "image/png", "image.png"},
		{"image.png", "image/png", "image.png"},
		{"IMAGE.PNG", "image/png", "IMAGE.PNG"},
		{"image.jpeg", "image/png", "image.png"},
		{"image.jpg", "image/jpeg", "image.jpeg"},
		{"photo.final.webp", "image/webp", "photo.final.webp"},
		{"clip.gif", "video/mp4", "clip.mp4"},
		{"", "image/png", "unknown.png"},
		{"noext", "", "noext.jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"|"+tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFilename(tt.name, tt.mime))
		})
	}
}

func TestNormalizeFilenameIdempotent(t *testing.T) {
	mimes := []string{"image/png", "image/webp", "image/tiff", "video/mp4", "image/jpeg", "image/jpg", "", "application/octet-stream"}
	names := []string{"", "a", "a.png", "a.PNG", "a.jpg", "a.jpeg", "a.tif", "a.tiff", "a.b.c", "a.", ".hidden", "x.mp4"}

	for _, mime := range mimes {
		for _, name := range names {
			once := NormalizeFilename(name, mime)
			assert.Equal(t, once, NormalizeFilename(once, mime), "name=%q mime=%q", name, mime)
		}
	}
}

func TestImageURL(t *testing.T) {
	assert.Equal(t,
		"https://image.civitai.com/xG1nkqKTMzGDvpLrqFT7WA/abc-123/original=true/quality=90/pic.png",
		ImageURL("abc-123", "pic", "image/png"))
	assert.Equal(t, "https://cdn.example/x.png", ImageURL("https://cdn.example/x.png", "pic", "image/png"))
	assert.Empty(t, ImageURL("", "pic", "image/png"))

	m := NewMerger("http://localhost:9000/cdn/")
	assert.Equal(t, "http://localhost:9000/cdn/h/original=true/quality=90/n.jpeg", m.ImageURL("h", "n", ""))
}

func TestResolveAuthor(t *testing.T) {
	tests := []struct {
		name string
		item models.ListItem
		want string
	}{
		{"list username", models.ListItem{Username: "alice", UserUsername: "bob"}, "alice"},
		{"nested user", models.ListItem{UserUsername: "bob", AccountUsername: "carol"}, "bob"},
		{"nested account", models.ListItem{AccountUsername: "carol"}, "carol"},
		{"whitespace skipped", models.ListItem{Username: "  ", AccountUsername: "carol"}, "carol"},
		{"nothing", models.ListItem{}, models.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAuthor(tt.item))
		})
	}
}

const detailJSON = `{
	"meta": {
		"prompt": "a cat",
		"negativePrompt": "blurry",
		"steps": 30,
		"cfgScale": 7,
		"sampler": "DPM++ 2M Karras",
		"seed": 1234,
		"baseModel": "SDXL 1.0",
		"clipSkip": 2
	},
	"resources": [
		{"modelType": "Checkpoint", "modelName": "Juggernaut XL", "versionName": "v9", "id": 133005, "modelVersionId": 348913},
		{"modelType": "LORA", "modelName": "Detail Tweaker", "strength": 0.8, "id": 58390, "modelVersionId": 62833},
		{"modelName": "add-detail lora", "strength": 0.5},
		{"modelType": "TextualInversion", "modelName": "easynegative"}
	]
}`

func TestMerge(t *testing.T) {
	item := models.ListItemFromJSON(gjson.Parse(`{
		"id": 42, "type": "image", "url": "hash-42", "name": "cat.jpg",
		"mimeType": "image/png", "user": {"username": "painter"},
		"createdAt": "2024-05-01T00:00:00.000Z", "nsfwLevel": 1
	}`))
	detail := models.DetailFromJSON(gjson.Parse(detailJSON))

	rec := Merge(item, detail)

	assert.Equal(t, int64(42), rec.ImageID)
	assert.Equal(t, DefaultCDNBase+"/hash-42/original=true/quality=90/cat.png", rec.URL)
	assert.Equal(t, "cat.png", rec.Filename)
	assert.Equal(t, "painter", rec.Author)
	assert.True(t, rec.Nsfw)
	assert.Equal(t, "Juggernaut XL", rec.Model)
	assert.Equal(t, "v9", rec.ModelVersion)
	assert.Equal(t, int64(348913), rec.ModelVersionID)
	assert.Equal(t, "SDXL 1.0", rec.BaseModel)
	assert.Equal(t, "DPM++ 2M Karras", rec.Sampler)
	assert.Equal(t, 30, rec.Steps)
	require.NotNil(t, rec.ClipSkip)
	assert.Equal(t, 2, *rec.ClipSkip)

	require.Len(t, rec.Loras, 2)
	assert.Equal(t, "Detail Tweaker", rec.Loras[0].Name)
	assert.Equal(t, "add-detail lora", rec.Loras[1].Name)
	require.Len(t, rec.Embeddings, 1)
	assert.Empty(t, rec.Tags)
}

func TestMergeWithoutDetail(t *testing.T) {
	rec := Merge(models.ListItem{ID: 7}, models.DetailRecord{})

	assert.Equal(t, models.Unknown, rec.Author)
	assert.Equal(t, models.Unknown, rec.Model)
	assert.Equal(t, "unknown", rec.Process)
	assert.Empty(t, rec.URL)
	assert.NotNil(t, rec.Loras)

	m := rec.ToMap()
	assert.NotContains(t, m, "author")
	assert.NotContains(t, m, "model")
	assert.NotContains(t, m, "created_at")
	assert.NotContains(t, m, "clip_skip")
	assert.Equal(t, int64(7), m["image_id"])
	assert.Equal(t, "unknown", m["process"])
}

func TestMergeSingle(t *testing.T) {
	basic := models.ListItem{ID: 1, URL: "h", Username: "flat", UserUsername: "nested"}
	rec := NewMerger("").MergeSingle(basic, models.DetailRecord{})
	assert.Equal(t, "nested", rec.Author)

	rec = NewMerger("").MergeSingle(models.ListItem{ID: 1, Username: "flat"}, models.DetailRecord{})
	assert.Equal(t, "flat", rec.Author)
}

func TestWithTagsCopies(t *testing.T) {
	rec := Merge(models.ListItem{ID: 1, Username: "a"}, models.DetailRecord{})
	tags := []string{"cat", "portrait"}

	tagged := rec.WithTags(tags)
	tags[0] = "dog"

	assert.Empty(t, rec.Tags)
	assert.Equal(t, []string{"cat", "portrait"}, tagged.Tags)
	assert.Equal(t, rec.ImageID, tagged.ImageID)
}

func TestMarshalJSON(t *testing.T) {
	rec := Merge(models.ListItem{ID: 9, URL: "h", Name: "n.png", MimeType: "image/png", Username: "u"},
		models.DetailFromJSON(gjson.Parse(detailJSON))).WithTags([]string{"cat"})

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(data)
	assert.Equal(t, int64(9), parsed.Get("image_id").Int())
	assert.Equal(t, "u", parsed.Get("author").String())
	assert.Equal(t, "Detail Tweaker", parsed.Get("loras.0.name").String())
	assert.Equal(t, 0.8, parsed.Get("loras.0.weight").Float())
	assert.Equal(t, "cat", parsed.Get("tags.0").String())
}

func TestMarshalJSONKeyOrder(t *testing.T) {
	rec := Merge(models.ListItem{ID: 9, URL: "h", Name: "n.png", MimeType: "image/png", Username: "u"},
		models.DetailFromJSON(gjson.Parse(detailJSON)))

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var keys []string
	gjson.ParseBytes(data).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	require.NotEmpty(t, keys)
	assert.Equal(t, "image_id", keys[0])
	assert.Equal(t, "tags", keys[len(keys)-1])
	assert.Less(t, indexOf(keys, "author"), indexOf(keys, "model"))
	assert.Less(t, indexOf(keys, "prompt"), indexOf(keys, "loras"))

	// every exported field has a place in the order
	assert.Len(t, keys, len(rec.ToMap()))
}

func indexOf(keys []string, k string) int {
	for i, v := range keys {
		if v == k {
			return i
		}
	}
	return -1
}

func TestFormatLoras(t *testing.T) {
	assert.Equal(t, "No LoRAs used", FormatLoras(nil))
	assert.Equal(t, "a (w:0.80), b (w:1.00)", FormatLoras([]resources.Lora{
		{Name: "a", Weight: 0.8},
		{Name: "b", Weight: 1},
	}))
}
