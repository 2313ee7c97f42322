package resources

import (
	"testing"

	"civharvest/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  models.Resource
		want Kind
	}{
		{name: "name marker lora", res: models.Resource{ModelName: "Detail Tweaker LoRA"}, want: KindLora},
		{name: "explicit checkpoint", res: models.Resource{Type: "Checkpoint", ModelName: "some lora looking name"}, want: KindCheckpoint},
		{name: "upper case checkpoint", res: models.Resource{ModelType: "CHECKPOINT"}, want: KindCheckpoint},
		{name: "model type wins over type", res: models.Resource{ModelType: "LORA", Type: "checkpoint"}, want: KindLora},
		{name: "textual inversion", res: models.Resource{ModelType: "TextualInversion", ModelName: "easynegative"}, want: KindEmbedding},
		{name: "embedding by name", res: models.Resource{ModelName: "Bad Hands Embedding"}, want: KindEmbedding},
		{name: "checkpoint by name", res: models.Resource{ModelName: "Realistic Checkpoint v5"}, want: KindCheckpoint},
		{name: "unrecognized type ignores name", res: models.Resource{Type: "vae", ModelName: "vae lora"}, want: KindUnknown},
		{name: "nothing to go on", res: models.Resource{ModelName: models.Unknown}, want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res))
		})
	}
}

func TestExtract(t *testing.T) {
	list := []models.Resource{
		{ModelType: "lora", ModelName: "Detail Tweaker", Strength: ptr(0.8), ModelID: 58390, ModelVersionID: 62833},
		{ModelType: "checkpoint", ModelName: "DreamShaper", VersionName: "8", ModelID: 4384, ModelVersionID: 128713, BaseModel: "SD 1.5"},
		{ModelType: "lora", ModelName: "Detail Tweaker", Strength: ptr(-0.5), ModelID: 58390, ModelVersionID: 62833},
		{ModelType: "checkpoint", ModelName: "Second", VersionName: "1"},
		{ModelType: "lora", ModelName: "No Strength"},
		{ModelType: "lora", ModelName: "Zero Strength", Strength: ptr(0)},
		{ModelType: "textualinversion", ModelName: "easynegative", Strength: ptr(0.6), ModelID: 7808, ModelVersionID: 9208, BaseModel: "SD 1.5"},
		{ModelType: "textualinversion", ModelName: "bad-hands-5"},
		{ModelType: "vae", ModelName: "kl-f8"},
	}

	ex := Extract(list)

	require.NotNil(t, ex.Primary)
	assert.Equal(t, "DreamShaper", ex.Primary.Name)
	assert.Equal(t, "8", ex.Primary.Version)
	assert.Equal(t, int64(128713), ex.Primary.ModelVersionID)
	assert.Len(t, ex.Models, 2)

	require.Len(t, ex.Loras, 4)
	assert.Equal(t, "Detail Tweaker", ex.Loras[0].Name)
	assert.Equal(t, 0.8, ex.Loras[0].Weight)
	assert.Equal(t, "Detail Tweaker", ex.Loras[1].Name)
	assert.Equal(t, -0.5, ex.Loras[1].Weight)
	assert.Equal(t, DefaultLoraWeight, ex.Loras[2].Weight)
	assert.Equal(t, DefaultLoraWeight, ex.Loras[3].Weight)

	require.Len(t, ex.Embeddings, 2)
	assert.Equal(t, Embedding{
		Name:           "easynegative",
		Weight:         0.6,
		ModelID:        7808,
		ModelVersionID: 9208,
		BaseModel:      "SD 1.5",
	}, ex.Embeddings[0])
	assert.Equal(t, DefaultLoraWeight, ex.Embeddings[1].Weight)
	assert.Equal(t, 1, ex.Unknown)
}

func TestExtractEmpty(t *testing.T) {
	ex := Extract(nil)
	assert.Nil(t, ex.Primary)
	assert.Empty(t, ex.Loras)
	assert.Empty(t, ex.Embeddings)
}
