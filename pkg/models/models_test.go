package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestListItemFromJSON(t *testing.T) {
	item := ListItemFromJSON(gjson.Parse(`{
		"id": 101,
		"url": "abc-hash",
		"name": "sunset.png",
		"mimeType": "image/png",
		"user": {"username": "painter"},
		"createdAt": "2025-01-01T00:00:00.000Z",
		"nsfwLevel": 4,
		"type": "image"
	}`))

	assert.Equal(t, int64(101), item.ID)
	assert.Equal(t, "abc-hash", item.URL)
	assert.Equal(t, "painter", item.UserUsername)
	assert.Empty(t, item.Username)
	assert.Equal(t, 4, item.NsfwLevel)
	assert.True(t, item.Raw.Exists())
}

func TestDetailFromJSON(t *testing.T) {
	detail := DetailFromJSON(gjson.Parse(`{
		"meta": {
			"prompt": "a cat",
			"steps": 28,
			"cfgScale": 6.5,
			"seed": 4294967297,
			"clipSkip": 2,
			"draft": false
		},
		"resources": [
			{"modelType": "Checkpoint", "modelName": "Base", "id": 1, "modelVersionId": 11},
			{"modelType": "LORA", "modelName": "Detail", "strength": 0.8, "clipWeight": 0.5},
			{"type": "embedding"}
		]
	}`))

	m := detail.Meta
	assert.Equal(t, "a cat", m.Prompt)
	assert.Equal(t, 28, m.Steps)
	assert.Equal(t, 6.5, m.CfgScale)
	assert.Equal(t, int64(4294967297), m.Seed)
	assert.Equal(t, Unknown, m.BaseModel)
	assert.Equal(t, Unknown, m.Sampler)
	assert.Equal(t, "unknown", m.Process)
	require.NotNil(t, m.ClipSkip)
	assert.Equal(t, 2, *m.ClipSkip)
	require.NotNil(t, m.Draft)
	assert.False(t, *m.Draft)
	assert.Nil(t, m.Workflow)

	require.Len(t, detail.Resources, 3)
	assert.Equal(t, int64(11), detail.Resources[0].ModelVersionID)
	assert.Nil(t, detail.Resources[0].Strength)
	require.NotNil(t, detail.Resources[1].Strength)
	assert.Equal(t, 0.8, *detail.Resources[1].Strength)
	assert.Equal(t, Unknown, detail.Resources[2].ModelName)
}

func TestTagsAndPresets(t *testing.T) {
	tags := TagsFromJSON(gjson.Parse(`[{"id":1,"name":"cat","score":3},{"id":2,"name":"sky","score":9}]`))
	require.Len(t, tags, 2)
	assert.Equal(t, "sky", tags[1].Name)

	presets := PresetsFromJSON(gjson.Parse(`[
		{"type":"none","nsfwLevels":[1],"disablePoi":true},
		{"type":"some","nsfwLevels":[1,2,4],"excludedTagIds":[5,6]}
	]`))
	require.Len(t, presets, 2)
	assert.Equal(t, []int{1, 2, 4}, presets[1].NsfwLevels)
	assert.Equal(t, []int{5, 6}, presets[1].ExcludedTagIDs)
	require.NotNil(t, presets[0].DisablePoi)
	assert.Nil(t, presets[1].DisableMinor)
}

func TestModelVersionFromJSON(t *testing.T) {
	mv := ModelVersionFromJSON(gjson.Parse(`{"id":9,"name":"v2","model":{"id":3,"name":"M","status":"Deleted"}}`))
	assert.Equal(t, int64(3), mv.ModelID)
	assert.Equal(t, "Deleted", mv.ModelStatus)

	missing := ModelVersionFromJSON(gjson.Parse(`{"id":9}`))
	assert.Equal(t, Unknown, missing.ModelStatus)
}
