package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
)

// LoadUpload reads one image file into an upload. Files over maxMB are
// refused here rather than sent to the model.
func LoadUpload(path string, maxMB int) (pipeline.Upload, error) {
	if !AllowedExt(filepath.Ext(path)) {
		return pipeline.Upload{}, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, err
	}
	if len(data) == 0 {
		return pipeline.Upload{}, fmt.Errorf("empty file: %s", filepath.Base(path))
	}
	if maxMB > 0 && llm.ImageTooLarge(data, maxMB) {
		return pipeline.Upload{}, fmt.Errorf("%s exceeds %d MB", filepath.Base(path), maxMB)
	}
	mimeType, _ := constants.MimeForExt(filepath.Ext(path))
	return pipeline.Upload{Filename: filepath.Base(path), MIMEType: mimeType, Data: data}, nil
}

// ScanDirectory walks root in lexical order, keeps accepted image files and
// loads them. Unreadable entries are reported in results and skipped.
func ScanDirectory(ctx context.Context, root string, skipHidden bool, maxMB int) ([]pipeline.Upload, []FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var (
		uploads []pipeline.Upload
		results []FileResult
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		up, err := LoadUpload(path, maxMB)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		uploads = append(uploads, up)
		results = append(results, FileResult{Path: path})
		stats.Loaded++
		return nil
	})
	if err != nil {
		return uploads, results, stats, fmt.Errorf("walk: %w", err)
	}
	return uploads, results, stats, nil
}
