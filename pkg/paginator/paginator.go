// Package paginator drives image.getInfinite across cursor pages until the
// collection is exhausted, a limit is hit, or the server starts repeating
// itself.
package paginator

import (
	"context"
	"encoding/json"
	"fmt"

	"civharvest/pkg/checkpoint"
	"civharvest/pkg/civitai"
	"civharvest/pkg/errors"
	"civharvest/pkg/locator"
	"civharvest/pkg/logger"
	"civharvest/pkg/models"

	"github.com/tidwall/gjson"
)

// Status is the paginator state. The last four are terminal.
type Status string

const (
	StatusInit           Status = "init"
	StatusFetching       Status = "fetching"
	StatusAdvancing      Status = "advancing"
	StatusDuplicateStall Status = "duplicate_stall"
	StatusExhausted      Status = "exhausted"
	StatusLimitReached   Status = "limit_reached"
	StatusError          Status = "error"
)

// Terminal reports whether pagination has stopped.
func (s Status) Terminal() bool {
	switch s {
	case StatusDuplicateStall, StatusExhausted, StatusLimitReached, StatusError:
		return true
	}
	return false
}

// State is the pagination bookkeeping of one collection.
type State struct {
	CollectionID int64
	Cursor       any
	Seen         map[int64]struct{}
	PageCounts   []int
	Fetches      int
	Status       Status
	// Reason explains LimitReached (item limit or page limit).
	Reason string
	// Err is set for Error, DuplicateStall, and for Exhausted when the
	// response shape could not be searched to the end.
	Err error
}

func newState(collectionID int64) *State {
	return &State{
		CollectionID: collectionID,
		Seen:         make(map[int64]struct{}),
		Status:       StatusInit,
	}
}

// Result holds the items gathered so far together with the final state.
type Result struct {
	Items []models.ListItem
	State *State
}

// Fetcher returns one decoded collection page. *civitai.API implements it.
type Fetcher interface {
	CollectionPage(ctx context.Context, collectionID int64, prefs civitai.BrowsingPrefs, cursor any) (gjson.Result, error)
}

// Checkpointer persists progress between pages.
type Checkpointer interface {
	Save(cp *checkpoint.Checkpoint) error
	Delete() error
}

// Options configures a Paginator
type Options struct {
	Prefs civitai.BrowsingPrefs
	// MaxPages stops after this many fetches; zero means no page limit.
	MaxPages int
	// MaxDepth bounds the item list search; zero means locator.DefaultMaxDepth.
	MaxDepth     int
	Checkpointer Checkpointer
	Logger       logger.Logger
}

// Paginator walks collection pages sequentially.
type Paginator struct {
	fetcher Fetcher
	opts    Options
	logger  logger.Logger
	resume  *checkpoint.Checkpoint
}

// New creates a Paginator over fetcher.
func New(fetcher Fetcher, opts Options) *Paginator {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = locator.DefaultMaxDepth
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Paginator{fetcher: fetcher, opts: opts, logger: log}
}

// Resume seeds the next Paginate call of the same collection from a saved
// checkpoint.
func (p *Paginator) Resume(cp *checkpoint.Checkpoint) {
	p.resume = cp
}

// Paginate collects up to limit items (limit <= 0 means all) of the
// collection. The returned Result is never nil and carries partial items
// on failure; the error is the State.Err of an Error outcome.
func (p *Paginator) Paginate(ctx context.Context, collectionID int64, limit int) (*Result, error) {
	state := newState(collectionID)
	var items []models.ListItem

	if cp := p.resume; cp != nil && cp.CollectionID == collectionID {
		items = p.restore(state, cp)
		p.resume = nil
	}

	log := p.logger.WithField("collection_id", collectionID)

	for {
		if err := ctx.Err(); err != nil {
			state.Status = StatusError
			state.Err = err
			break
		}
		if limit > 0 && len(items) >= limit {
			state.Status = StatusLimitReached
			state.Reason = fmt.Sprintf("item limit %d reached", limit)
			break
		}
		if p.opts.MaxPages > 0 && state.Fetches >= p.opts.MaxPages {
			state.Status = StatusLimitReached
			state.Reason = fmt.Sprintf("page limit %d reached", p.opts.MaxPages)
			log.WarnWithFields("stopping at page limit", map[string]interface{}{
				"max_pages": p.opts.MaxPages,
				"items":     len(items),
			})
			break
		}

		state.Status = StatusFetching
		body, err := p.fetcher.CollectionPage(ctx, collectionID, p.opts.Prefs, state.Cursor)
		state.Fetches++
		if err != nil {
			state.Status = StatusError
			state.Err = fmt.Errorf("fetch page %d: %w", state.Fetches, err)
			log.WithError(err).WithField("page", state.Fetches).Error("page fetch failed")
			break
		}

		loc := locator.Find(body, p.opts.MaxDepth)
		if !loc.Found() {
			state.Status = StatusExhausted
			if loc.Truncated {
				state.Err = errors.NewShapeError(fmt.Sprintf(
					"no item list within depth %d on page %d", p.opts.MaxDepth, state.Fetches))
				log.WithError(state.Err).Warn("response shape not recognized")
			}
			logger.LogPage(log, int(collectionID), state.Fetches, 0, 0, string(state.Status))
			break
		}

		page := models.ListItemsFromJSON(loc.Items())
		if dup := repeated(state.Seen, page); len(dup) > 0 {
			state.Status = StatusDuplicateStall
			state.Err = errors.NewDuplicatePageError(fmt.Sprintf(
				"page %d repeats %d already seen ids (first %d)", state.Fetches, len(dup), dup[0]))
			log.WarnWithFields("server returned a page that was already seen", map[string]interface{}{
				"page":       state.Fetches,
				"duplicates": len(dup),
				"cursor":     fmt.Sprint(state.Cursor),
			})
			break
		}

		accepted := page
		trimmed := limit > 0 && len(items)+len(page) > limit
		if trimmed {
			accepted = page[:limit-len(items)]
			// checkpoint the start of this page so a resumed run lists
			// the items cut off here
			before := *state
			before.Fetches--
			p.save(&before, items)
		}

		for _, it := range accepted {
			state.Seen[it.ID] = struct{}{}
		}
		state.PageCounts = append(state.PageCounts, len(page))
		items = append(items, accepted...)

		if trimmed {
			state.Status = StatusLimitReached
			state.Reason = fmt.Sprintf("item limit %d reached", limit)
			logger.LogPage(log, int(collectionID), state.Fetches, len(page), len(accepted), string(state.Status))
			break
		}

		state.Status = StatusAdvancing
		logger.LogPage(log, int(collectionID), state.Fetches, len(page), len(accepted), string(state.Status))

		next := civitai.CursorFrom(nextCursor(loc, body))
		if next == nil || civitai.SameCursor(next, state.Cursor) {
			state.Status = StatusExhausted
			break
		}
		state.Cursor = next
		p.save(state, items)
	}

	if state.Status == StatusExhausted && p.opts.Checkpointer != nil {
		if err := p.opts.Checkpointer.Delete(); err != nil {
			log.WithError(err).Warn("failed to delete checkpoint")
		}
	}

	log.InfoWithFields("pagination finished", map[string]interface{}{
		"state":   string(state.Status),
		"items":   len(items),
		"fetches": state.Fetches,
	})

	res := &Result{Items: items, State: state}
	if state.Status == StatusError {
		return res, state.Err
	}
	return res, nil
}

// nextCursor reads nextCursor beside the item list, falling back to the
// top of the decoded body.
func nextCursor(loc locator.Located, body gjson.Result) gjson.Result {
	if loc.Container.Exists() {
		if c := loc.Container.Get("nextCursor"); c.Exists() {
			return c
		}
	}
	return body.Get("nextCursor")
}

func repeated(seen map[int64]struct{}, page []models.ListItem) []int64 {
	var dup []int64
	for _, it := range page {
		if _, ok := seen[it.ID]; ok {
			dup = append(dup, it.ID)
		}
	}
	return dup
}

func (p *Paginator) save(state *State, items []models.ListItem) {
	if p.opts.Checkpointer == nil {
		return
	}
	if err := p.opts.Checkpointer.Save(Snapshot(state, items)); err != nil {
		p.logger.WithError(err).Warn("failed to save checkpoint")
	}
}

// Snapshot converts the live state into a checkpoint.
func Snapshot(state *State, items []models.ListItem) *checkpoint.Checkpoint {
	cp := &checkpoint.Checkpoint{
		CollectionID: state.CollectionID,
		PageCounts:   append([]int(nil), state.PageCounts...),
		Fetches:      state.Fetches,
		SeenIDs:      make([]int64, 0, len(state.Seen)),
		Items:        make([]json.RawMessage, 0, len(items)),
	}
	if state.Cursor != nil {
		if raw, err := json.Marshal(state.Cursor); err == nil {
			cp.Cursor = raw
		}
	}
	for _, it := range items {
		cp.Items = append(cp.Items, json.RawMessage(it.Raw.Raw))
		cp.SeenIDs = append(cp.SeenIDs, it.ID)
	}
	return cp
}

func (p *Paginator) restore(state *State, cp *checkpoint.Checkpoint) []models.ListItem {
	if len(cp.Cursor) > 0 {
		state.Cursor = civitai.CursorFrom(gjson.ParseBytes(cp.Cursor))
	}
	state.PageCounts = append(state.PageCounts, cp.PageCounts...)
	state.Fetches = cp.Fetches
	for _, id := range cp.SeenIDs {
		state.Seen[id] = struct{}{}
	}

	items := make([]models.ListItem, 0, len(cp.Items))
	for _, raw := range cp.Items {
		items = append(items, models.ListItemFromJSON(gjson.ParseBytes(raw)))
	}

	p.logger.InfoWithFields("resuming pagination from checkpoint", map[string]interface{}{
		"collection_id": cp.CollectionID,
		"items":         len(items),
		"fetches":       cp.Fetches,
	})
	return items
}
