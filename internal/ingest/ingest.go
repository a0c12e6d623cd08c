// Package ingest discovers invoice images on disk for the offline CLI: a
// one-shot directory scan and a watch mode for drop folders.
package ingest

// FileResult is the per-file outcome of a scan.
type FileResult struct {
	Path string
	Err  string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Loaded  uint32
	Failed  uint32
}
