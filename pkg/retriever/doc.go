// Package retriever runs one bulk download: it lists the completed scenes of
// an order through an espa.Source and hands each of them to a storage.Store
// through the worker pool.
//
// Listing failures (bad credentials, unknown order) abort the run before
// anything is written. Failures of a single scene are collected in the
// Summary and the run moves on; rerunning picks them up again because the
// filesystem is the only record of what has been stored.
package retriever
