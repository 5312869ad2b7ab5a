// Package espa lists the completed scenes of ESPA orders.
//
// Two sources are available behind the Source interface. FeedSource reads
// the account's RSS status feed, where every item carries a description of
// the form "scene_status:<status>,orderid:<id>,orderdate:<date>" and links to
// the scene archive. APISource queries the JSON item-status endpoint and,
// for AllOrders, the order listing endpoint first.
//
// Both share a Client that authenticates with HTTP basic auth, respects a
// rate limiter and retries transient failures. A 401 or 403 response yields
// an auth error and a 404 a not_found error; callers treat both as fatal.
//
//	client := espa.NewClient(espa.ClientOptions{
//	    Host:     "https://espa.cr.usgs.gov",
//	    Username: user,
//	    Password: pass,
//	}, log)
//	scenes, err := espa.NewFeedSource(client, "me@example.com").ListCompleted(ctx, espa.AllOrders)
package espa
