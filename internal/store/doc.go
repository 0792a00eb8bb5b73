// Package store persists recording chunks, analysis batches, summaries, and
// settings in SQLite. All mutating access funnels through one serialized
// writer; reads run concurrently with the writer under WAL.
package store
