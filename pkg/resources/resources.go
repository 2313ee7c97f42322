// Package resources classifies the generation resources attached to an
// image and pulls out the checkpoint, LoRAs and embeddings.
package resources

import (
	"strings"

	"civharvest/pkg/models"
)

// Kind is the classification of a resource.
type Kind string

const (
	KindCheckpoint Kind = "checkpoint"
	KindLora       Kind = "lora"
	KindEmbedding  Kind = "embedding"
	KindUnknown    Kind = "unknown"
)

// DefaultLoraWeight applies when a LoRA carries no strength, or a zero one.
const DefaultLoraWeight = 1.0

var typeKinds = map[string]Kind{
	"checkpoint":       KindCheckpoint,
	"lora":             KindLora,
	"locon":            KindLora,
	"dora":             KindLora,
	"embedding":        KindEmbedding,
	"textualinversion": KindEmbedding,
}

// name markers in match order
var nameMarkers = []struct {
	marker string
	kind   Kind
}{
	{"lora", KindLora},
	{"checkpoint", KindCheckpoint},
	{"embedding", KindEmbedding},
}

// Classify returns the kind of r. An explicit modelType (or type) decides;
// the display name is only consulted when both are empty.
func Classify(r models.Resource) Kind {
	t := r.ModelType
	if t == "" {
		t = r.Type
	}
	if t != "" {
		if k, ok := typeKinds[strings.ToLower(strings.TrimSpace(t))]; ok {
			return k
		}
		return KindUnknown
	}

	name := strings.ToLower(r.ModelName)
	for _, m := range nameMarkers {
		if strings.Contains(name, m.marker) {
			return m.kind
		}
	}
	return KindUnknown
}

// Model is a checkpoint identity.
type Model struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	ModelID        int64  `json:"model_id,omitempty"`
	ModelVersionID int64  `json:"model_version_id,omitempty"`
	BaseModel      string `json:"base_model,omitempty"`
}

// Lora is one LoRA application. The same LoRA may appear more than once
// with different weights.
type Lora struct {
	Name           string   `json:"name"`
	Weight         float64  `json:"weight"`
	ModelID        int64    `json:"model_id,omitempty"`
	ModelVersionID int64    `json:"model_version_id,omitempty"`
	VersionName    string   `json:"version_name,omitempty"`
	BaseModel      string   `json:"base_model,omitempty"`
	ClipWeight     *float64 `json:"clip_weight,omitempty"`
}

// Embedding is a textual inversion.
type Embedding struct {
	Name           string  `json:"name"`
	Weight         float64 `json:"weight"`
	ModelID        int64   `json:"model_id,omitempty"`
	ModelVersionID int64   `json:"model_version_id,omitempty"`
	VersionName    string  `json:"version_name,omitempty"`
	BaseModel      string  `json:"base_model,omitempty"`
}

// Extraction is everything Extract found, in input order.
type Extraction struct {
	// Primary is the first checkpoint, nil when there is none.
	Primary    *Model
	Models     []Model
	Loras      []Lora
	Embeddings []Embedding
	Unknown    int
}

// Extract walks resources once and sorts them by kind.
func Extract(list []models.Resource) Extraction {
	var ex Extraction
	for _, r := range list {
		switch Classify(r) {
		case KindCheckpoint:
			m := Model{
				Name:           r.ModelName,
				Version:        r.VersionName,
				ModelID:        r.ModelID,
				ModelVersionID: r.ModelVersionID,
				BaseModel:      r.BaseModel,
			}
			if m.Version == "" {
				m.Version = models.Unknown
			}
			ex.Models = append(ex.Models, m)
			if ex.Primary == nil {
				p := m
				ex.Primary = &p
			}
		case KindLora:
			ex.Loras = append(ex.Loras, Lora{
				Name:           r.ModelName,
				Weight:         weight(r.Strength),
				ModelID:        r.ModelID,
				ModelVersionID: r.ModelVersionID,
				VersionName:    r.VersionName,
				BaseModel:      r.BaseModel,
				ClipWeight:     r.ClipWeight,
			})
		case KindEmbedding:
			ex.Embeddings = append(ex.Embeddings, Embedding{
				Name:           r.ModelName,
				Weight:         weight(r.Strength),
				ModelID:        r.ModelID,
				ModelVersionID: r.ModelVersionID,
				VersionName:    r.VersionName,
				BaseModel:      r.BaseModel,
			})
		default:
			ex.Unknown++
		}
	}
	return ex
}

func weight(strength *float64) float64 {
	if strength == nil || *strength == 0 {
		return DefaultLoraWeight
	}
	return *strength
}
