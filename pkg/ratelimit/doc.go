// Package ratelimit spaces out requests to the tRPC API.
//
// Two limiters implement the Limiter interface:
//
//   - TokenBucket caps the overall request rate, backed by x/time/rate.
//     The client waits on it before every call.
//   - Pacer sleeps a fixed delay between consecutive detail fetches. The
//     first call is never delayed.
//
// Both honor context cancellation while waiting.
//
//	ceiling := ratelimit.NewTokenBucket(90, 1)
//	pacer := ratelimit.NewPacer(200 * time.Millisecond)
//	for _, item := range items {
//	    if err := pacer.Wait(ctx); err != nil {
//	        return err
//	    }
//	    // fetch details
//	}
package ratelimit
