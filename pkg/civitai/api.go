package civitai

import (
	"context"
	"fmt"
	"sort"

	"civharvest/pkg/errors"
	"civharvest/pkg/models"

	"github.com/tidwall/gjson"
)

// Caller is the single operation the typed API needs from a transport.
// *Client implements it; tests substitute scripted fakes.
type Caller interface {
	Call(ctx context.Context, procedure string, payload Payload) (gjson.Result, error)
}

// API wraps a Caller with typed procedure calls.
type API struct {
	caller Caller
}

// NewAPI creates the typed API over caller.
func NewAPI(caller Caller) *API {
	return &API{caller: caller}
}

// Caller returns the underlying transport.
func (a *API) Caller() Caller {
	return a.caller
}

func isEmpty(r gjson.Result) bool {
	return !r.Exists() || r.Type == gjson.Null
}

// CollectionPage fetches one image.getInfinite page.
func (a *API) CollectionPage(ctx context.Context, collectionID int64, prefs BrowsingPrefs, cursor any) (gjson.Result, error) {
	return a.caller.Call(ctx, ProcImageInfinite, CollectionPayload(collectionID, prefs, cursor))
}

// GenerationData fetches the generation metadata of one image. A null
// result is reported as not found.
func (a *API) GenerationData(ctx context.Context, imageID int64) (models.DetailRecord, error) {
	res, err := a.caller.Call(ctx, ProcGenerationData, IDPayload(imageID))
	if err != nil {
		return models.DetailRecord{}, err
	}
	if isEmpty(res) {
		return models.DetailRecord{}, &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: fmt.Sprintf("no generation data for image %d", imageID),
		}
	}
	return models.DetailFromJSON(res), nil
}

// VotableTags fetches the tags of an image, highest score first.
func (a *API) VotableTags(ctx context.Context, imageID int64) ([]models.Tag, error) {
	res, err := a.caller.Call(ctx, ProcVotableTags, VotableTagsPayload(imageID))
	if err != nil {
		return nil, err
	}
	tags := models.TagsFromJSON(res)
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Score > tags[j].Score
	})
	return tags, nil
}

// TagNames returns the names of tags in order.
func TagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// ImageBasic fetches image.get, the basic info of a single image.
func (a *API) ImageBasic(ctx context.Context, imageID int64) (models.ListItem, error) {
	res, err := a.caller.Call(ctx, ProcImageGet, IDPayload(imageID))
	if err != nil {
		return models.ListItem{}, err
	}
	if isEmpty(res) {
		return models.ListItem{}, &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: fmt.Sprintf("image %d not found", imageID),
		}
	}
	return models.ListItemFromJSON(res), nil
}

// Collection fetches collection metadata. The response nests it under
// a "collection" key.
func (a *API) Collection(ctx context.Context, collectionID int64) (models.CollectionInfo, error) {
	res, err := a.caller.Call(ctx, ProcCollectionByID, IDPayload(collectionID))
	if err != nil {
		return models.CollectionInfo{}, err
	}
	col := res.Get("collection")
	if isEmpty(col) {
		return models.CollectionInfo{}, &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: fmt.Sprintf("collection %d not found", collectionID),
		}
	}
	return models.CollectionFromJSON(col), nil
}

// BrowsingPresets fetches the account's browsing setting presets.
func (a *API) BrowsingPresets(ctx context.Context) ([]models.BrowsingPreset, error) {
	res, err := a.caller.Call(ctx, ProcBrowsingAddons, Payload{"authed": true})
	if err != nil {
		return nil, err
	}
	return models.PresetsFromJSON(res), nil
}

// AvailabilityStatus is the outcome of a model availability check.
type AvailabilityStatus string

const (
	StatusAvailable AvailabilityStatus = "available"
	StatusDeleted   AvailabilityStatus = "deleted"
	StatusNotFound  AvailabilityStatus = "not_found"
	StatusUnknown   AvailabilityStatus = "unknown"
	StatusError     AvailabilityStatus = "error"
)

// Availability describes whether a model version can still be fetched
// from civitai.
type Availability struct {
	Status         AvailabilityStatus
	ModelID        int64
	ModelVersionID int64
	CivitaiURL     string
	ArchiveURL     string
	StatusCode     int
	ModelStatus    string
	Error          string
}

// Available reports true only for a confirmed live model.
func (a Availability) Available() bool {
	return a.Status == StatusAvailable
}

// CheckModelAvailability looks a model version up through
// modelVersion.getById. Without a version id the status is unknown. A zero
// modelID is filled in from the response.
func (a *API) CheckModelAvailability(ctx context.Context, modelID, versionID int64) Availability {
	out := Availability{
		ModelID:        modelID,
		ModelVersionID: versionID,
		CivitaiURL:     ModelURL(modelID, versionID),
		ArchiveURL:     ArchiveURL(modelID, versionID),
	}

	if versionID == 0 {
		out.Status = StatusUnknown
		out.Error = "no model version id provided, cannot verify availability"
		return out
	}

	res, err := a.caller.Call(ctx, ProcModelVersionByID, IDPayload(versionID))
	switch {
	case errors.IsType(err, errors.ErrorTypeNotFound):
		res = gjson.Result{}
	case err != nil:
		out.Status = StatusError
		out.Error = err.Error()
		return out
	}

	if isEmpty(res) {
		out.Status = StatusNotFound
		out.StatusCode = 404
		out.Error = "model version not found"
		return out
	}

	mv := models.ModelVersionFromJSON(res)
	out.ModelStatus = mv.ModelStatus
	if out.ModelID == 0 && mv.ModelID != 0 {
		out.ModelID = mv.ModelID
		out.CivitaiURL = ModelURL(mv.ModelID, versionID)
		out.ArchiveURL = ArchiveURL(mv.ModelID, versionID)
	}
	if mv.ModelStatus == "Deleted" {
		out.Status = StatusDeleted
		out.Error = "model has been deleted from civitai"
		return out
	}

	out.Status = StatusAvailable
	out.StatusCode = 200
	return out
}
