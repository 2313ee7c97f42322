package paginator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"civharvest/pkg/checkpoint"
	"civharvest/pkg/civitai"
	"civharvest/pkg/errors"
	"civharvest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// scriptedFetcher serves one body per call and records the cursors it saw.
type scriptedFetcher struct {
	pages   []string
	errAt   int
	err     error
	cursors []any
}

func (f *scriptedFetcher) CollectionPage(_ context.Context, _ int64, _ civitai.BrowsingPrefs, cursor any) (gjson.Result, error) {
	f.cursors = append(f.cursors, cursor)
	n := len(f.cursors)
	if f.err != nil && n == f.errAt {
		return gjson.Result{}, f.err
	}
	if n > len(f.pages) {
		return gjson.Parse(`{"items":[],"nextCursor":null}`), nil
	}
	return gjson.Parse(f.pages[n-1]), nil
}

func page(firstID, count int, next string) string {
	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d,"type":"image","url":"hash-%d"}`, firstID+i, firstID+i))
	}
	return fmt.Sprintf(`{"items":[%s],"nextCursor":%s}`, strings.Join(items, ","), next)
}

func newTestPaginator(f Fetcher, opts Options) *Paginator {
	opts.Logger = logger.NewNopLogger()
	return New(f, opts)
}

func TestPaginateUntilExhausted(t *testing.T) {
	f := &scriptedFetcher{pages: []string{
		page(1, 3, `"c2"`),
		page(4, 3, `"c3"`),
		page(7, 2, `null`),
	}}

	res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 11035255, 0)
	require.NoError(t, err)

	assert.Len(t, res.Items, 8)
	assert.Equal(t, StatusExhausted, res.State.Status)
	assert.Equal(t, []int{3, 3, 2}, res.State.PageCounts)
	assert.Equal(t, 3, res.State.Fetches)
	assert.Equal(t, []any{nil, "c2", "c3"}, f.cursors)
	assert.True(t, res.State.Status.Terminal())
}

func TestPaginateDuplicateStall(t *testing.T) {
	// the server ignores the cursor and keeps sending the first page
	same := page(1, 3, `"c2"`)
	f := &scriptedFetcher{pages: []string{same, same, same}}

	res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicateStall, res.State.Status)
	assert.Equal(t, 2, res.State.Fetches)
	assert.Len(t, res.Items, 3)
	assert.True(t, errors.IsType(res.State.Err, errors.ErrorTypeDuplicatePage))
}

func TestPaginateItemLimit(t *testing.T) {
	f := &scriptedFetcher{pages: []string{
		page(1, 3, `"c2"`),
		page(4, 3, `"c3"`),
		page(7, 3, `"c4"`),
	}}

	res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 5)
	require.NoError(t, err)

	require.Len(t, res.Items, 5)
	assert.Equal(t, int64(5), res.Items[4].ID)
	assert.Equal(t, StatusLimitReached, res.State.Status)
	assert.Equal(t, 2, res.State.Fetches)
	assert.Contains(t, res.State.Reason, "item limit")
}

func TestPaginateMaxPages(t *testing.T) {
	f := &scriptedFetcher{pages: []string{
		page(1, 2, `"c2"`),
		page(3, 2, `"c3"`),
		page(5, 2, `"c4"`),
	}}

	res, err := newTestPaginator(f, Options{MaxPages: 2}).Paginate(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Len(t, res.Items, 4)
	assert.Equal(t, StatusLimitReached, res.State.Status)
	assert.Equal(t, 2, res.State.Fetches)
	assert.Contains(t, res.State.Reason, "page limit")
}

func TestPaginateFetchErrorKeepsPartialItems(t *testing.T) {
	boom := errors.FromStatus(503, "unavailable")
	f := &scriptedFetcher{
		pages: []string{page(1, 3, `"c2"`)},
		errAt: 2,
		err:   boom,
	}

	res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 0)
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Len(t, res.Items, 3)
	assert.Equal(t, StatusError, res.State.Status)
	assert.Equal(t, res.State.Err, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeServerError))
}

func TestPaginateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &scriptedFetcher{pages: []string{page(1, 1, `null`)}}
	res, err := newTestPaginator(f, Options{}).Paginate(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusError, res.State.Status)
	assert.Empty(t, f.cursors)
}

func TestPaginateShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantItems int
		shapeErr  bool
	}{
		{name: "pages wrapper", body: `{"pages":[{"items":[{"id":1,"type":"image"}],"nextCursor":null}]}`, wantItems: 1},
		{name: "bare array", body: `[{"id":1,"type":"image"},{"id":2,"type":"image"}]`, wantItems: 2},
		{name: "empty items", body: `{"items":[],"nextCursor":"x"}`},
		{name: "no list", body: `{"message":"nothing here"}`},
		{name: "too deep", body: strings.Repeat(`{"a":`, 12) + `[{"id":1,"type":"image"}]` + strings.Repeat(`}`, 12), shapeErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{pages: []string{tt.body}}
			res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 0)
			require.NoError(t, err)

			assert.Len(t, res.Items, tt.wantItems)
			assert.Equal(t, StatusExhausted, res.State.Status)
			assert.Equal(t, 1, res.State.Fetches)
			if tt.shapeErr {
				assert.True(t, errors.IsType(res.State.Err, errors.ErrorTypeShape))
			} else {
				assert.NoError(t, res.State.Err)
			}
		})
	}
}

func TestPaginateRepeatedCursorStops(t *testing.T) {
	f := &scriptedFetcher{pages: []string{
		page(1, 2, `"c2"`),
		page(3, 2, `"c2"`),
	}}

	res, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.State.Status)
	assert.Len(t, res.Items, 4)
	assert.Equal(t, 2, res.State.Fetches)
}

func TestPaginateNumericCursorKeepsDigits(t *testing.T) {
	f := &scriptedFetcher{pages: []string{
		page(1, 1, `9007199254740993`),
		page(2, 1, `null`),
	}}

	_, err := newTestPaginator(f, Options{}).Paginate(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, f.cursors, 2)
	assert.Equal(t, json.Number("9007199254740993"), f.cursors[1])
}

func TestCheckpointSaveAndResume(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	mgr, err := checkpoint.NewManagerInDir(dir, 7)
	require.NoError(t, err)
	mgr.SetLogger(logger.NewNopLogger())

	// first run dies on the second page
	f := &scriptedFetcher{
		pages: []string{page(1, 3, `"c2"`)},
		errAt: 2,
		err:   errors.NewTransportError("connection reset", 0, nil),
	}
	_, err = newTestPaginator(f, Options{Checkpointer: mgr}).Paginate(context.Background(), 7, 0)
	require.Error(t, err)

	cp, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, `"c2"`, string(cp.Cursor))
	assert.ElementsMatch(t, []int64{1, 2, 3}, cp.SeenIDs)
	assert.Len(t, cp.Items, 3)

	// second run picks up at c2 and finishes
	f2 := &scriptedFetcher{pages: []string{
		page(4, 2, `"c3"`),
		page(6, 1, `null`),
	}}
	p := newTestPaginator(f2, Options{Checkpointer: mgr})
	p.Resume(cp)
	res, err := p.Paginate(context.Background(), 7, 0)
	require.NoError(t, err)

	assert.Equal(t, []any{"c2", "c3"}, f2.cursors)
	require.Len(t, res.Items, 6)
	assert.Equal(t, int64(1), res.Items[0].ID)
	assert.Equal(t, int64(6), res.Items[5].ID)
	assert.Equal(t, []int{3, 2, 1}, res.State.PageCounts)
	assert.False(t, mgr.Exists(), "checkpoint is removed once exhausted")
}

func TestResumeIgnoresOtherCollection(t *testing.T) {
	f := &scriptedFetcher{pages: []string{page(1, 1, `null`)}}
	p := newTestPaginator(f, Options{})
	p.Resume(&checkpoint.Checkpoint{CollectionID: 99, Cursor: json.RawMessage(`"zzz"`)})

	res, err := p.Paginate(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, f.cursors)
	assert.Len(t, res.Items, 1)
}

func TestResumeAfterItemLimitListsTrimmedItems(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	mgr, err := checkpoint.NewManagerInDir(dir, 7)
	require.NoError(t, err)
	mgr.SetLogger(logger.NewNopLogger())

	pages := []string{
		page(1, 3, `"c2"`),
		page(4, 3, `"c3"`),
		page(7, 3, `null`),
	}

	f := &scriptedFetcher{pages: pages}
	res, err := newTestPaginator(f, Options{Checkpointer: mgr}).Paginate(context.Background(), 7, 5)
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Equal(t, StatusLimitReached, res.State.Status)
	assert.NotContains(t, res.State.Seen, int64(6))

	// the checkpoint points at the page the limit cut short
	cp, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, `"c2"`, string(cp.Cursor))
	assert.Equal(t, []int64{1, 2, 3}, cp.SeenIDs)
	assert.Equal(t, 1, cp.Fetches)

	f2 := &scriptedFetcher{pages: pages[1:]}
	p := newTestPaginator(f2, Options{Checkpointer: mgr})
	p.Resume(cp)
	res, err = p.Paginate(context.Background(), 7, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, res.State.Status)
	assert.Equal(t, []any{"c2", "c3"}, f2.cursors)
	ids := make([]int64, 0, len(res.Items))
	for _, it := range res.Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, ids)
	assert.False(t, mgr.Exists())
}

func TestItemLimitOnFirstPageCheckpointsFromStart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	mgr, err := checkpoint.NewManagerInDir(dir, 7)
	require.NoError(t, err)
	mgr.SetLogger(logger.NewNopLogger())

	f := &scriptedFetcher{pages: []string{page(1, 3, `"c2"`)}}
	res, err := newTestPaginator(f, Options{Checkpointer: mgr}).Paginate(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	cp, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Empty(t, cp.Cursor)
	assert.Empty(t, cp.Items)
	assert.Equal(t, 0, cp.Fetches)
}
