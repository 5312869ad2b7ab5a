// Package ratelimit keeps espadl polite towards the ESPA service.
//
// Two mechanisms live here:
//
// Token Bucket:
//   - Fixed capacity bucket that refills after a specified period
//   - Bounds the number of listing, HEAD and range requests per minute
//   - PerMinute(0) yields a limiter that never blocks
//
// Random Pause:
//   - RandomPause implements Pacer and sleeps a random interval between
//     transfer chunks (5 to 30 seconds by default)
//   - The pause returns early with ctx.Err() when the run is cancelled
//
// Usage:
//
//	limiter := ratelimit.PerMinute(30)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
//	pacer := ratelimit.NewRandomPause(5*time.Second, 30*time.Second)
//	if err := pacer.Pause(ctx); err != nil {
//	    return err
//	}
package ratelimit
