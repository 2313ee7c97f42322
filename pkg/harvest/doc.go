// Package harvest runs a complete collection harvest.
//
// A run pages through the collection, then visits every listed image in
// order: it fetches the generation data, merges it with the list entry,
// looks up the votable tags and hands the finished record to the caller.
// Requests are strictly sequential and a fixed pacing delay separates
// consecutive detail fetches.
//
// Failures degrade rather than abort. A pagination error keeps the items
// listed so far, a failed detail fetch skips that image and a failed tag
// lookup leaves the record untagged. Only an authentication error or
// context cancellation ends the run early.
//
// Basic usage:
//
//	api := civitai.NewAPI(client)
//	h := harvest.New(api, harvest.Settings{ItemDelay: 200 * time.Millisecond})
//	report, err := h.Scrape(ctx, 11035255, harvest.Options{})
package harvest
