// Package storage keeps downloaded scenes on the local filesystem.
//
// Each scene lives at <basedir>/<orderID>/<fileName>. While a transfer is
// in progress the bytes accumulate in <fileName>.part, whose size is the
// only record of progress: a later run issues a range request starting at
// that size and appends. Once the partial file reaches the remote size it
// is renamed to the final name, so a final file is always complete and its
// existence alone marks the scene as stored.
//
// Failed transfers never delete the partial file. The Store keeps no other
// state and takes no locks; callers must not store the same scene from two
// goroutines at once.
//
// Usage:
//
//	store := storage.New("/data/espa", transfer.NewClient(transfer.Options{}, log),
//	    storage.WithVerbose(true),
//	    storage.WithReporter(ui.NewReporter(false)),
//	)
//	res, err := store.Store(ctx, scene)
package storage
