package testserver

import "fmt"

// Items generates n list items with consecutive ids starting at firstID.
// Authors rotate through the three places the API puts them, and every
// seventh item has none at all.
func Items(firstID int64, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		item := map[string]any{
			"id":        id,
			"type":      "image",
			"url":       fmt.Sprintf("a1b2c3d4-%08d", id),
			"name":      fmt.Sprintf("%d.jpeg", id),
			"mimeType":  mimeFor(i),
			"createdAt": "2024-06-01T12:00:00.000Z",
			"nsfwLevel": 1 << (i % 5),
		}
		switch i % 7 {
		case 0, 3:
			item["user"] = map[string]any{"id": 100 + i, "username": fmt.Sprintf("artist%d", i)}
		case 1, 4:
			item["username"] = fmt.Sprintf("flat%d", i)
		case 2, 5:
			item["account"] = map[string]any{"username": fmt.Sprintf("acct%d", i)}
		}
		items = append(items, item)
	}
	return items
}

func mimeFor(i int) string {
	switch i % 4 {
	case 1:
		return "image/png"
	case 2:
		return "image/webp"
	case 3:
		return "video/mp4"
	}
	return "image/jpeg"
}

// GenerationData is the default image.getGenerationData answer: one
// checkpoint, two LoRAs (one without a type) and an embedding.
func GenerationData(imageID int64) map[string]any {
	return map[string]any{
		"type":     "image",
		"onSite":   false,
		"process":  "txt2img",
		"external": nil,
		"meta": map[string]any{
			"prompt":         fmt.Sprintf("portrait %d, detailed", imageID),
			"negativePrompt": "lowres, bad anatomy",
			"cfgScale":       7,
			"steps":          28,
			"sampler":        "DPM++ 2M Karras",
			"seed":           1000 + imageID,
			"width":          832,
			"height":         1216,
			"baseModel":      "SDXL 1.0",
			"clipSkip":       2,
		},
		"resources": []map[string]any{
			{
				"imageId":        imageID,
				"modelVersionId": 128078,
				"strength":       nil,
				"modelId":        101055,
				"id":             101055,
				"modelName":      "SD XL",
				"modelType":      "Checkpoint",
				"versionName":    "v1.0 VAE fix",
				"baseModel":      "SDXL 1.0",
			},
			{
				"modelVersionId": 62833,
				"strength":       0.8,
				"id":             58390,
				"modelName":      "Detail Tweaker LoRA",
				"modelType":      "LORA",
				"versionName":    "v1.0",
				"baseModel":      "SD 1.5",
			},
			{
				"modelVersionId": 87153,
				"strength":       0.45,
				"id":             82098,
				"modelName":      "Add More Details lora",
				"versionName":    "v1",
			},
			{
				"modelVersionId": 9208,
				"id":             7808,
				"modelName":      "EasyNegative",
				"modelType":      "TextualInversion",
			},
		},
	}
}

// Tags builds votable tags from name/score pairs, in the given order.
func Tags(pairs ...any) []map[string]any {
	var tags []map[string]any
	for i := 0; i+1 < len(pairs); i += 2 {
		tags = append(tags, map[string]any{
			"id":    1000 + i,
			"name":  pairs[i],
			"type":  "Label",
			"score": pairs[i+1],
		})
	}
	return tags
}
