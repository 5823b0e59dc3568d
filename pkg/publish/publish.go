// Package publish copies a finished output to the places readers look for it.
package publish

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/wdm0006/labeletl/pkg/etl"
	iox "github.com/wdm0006/labeletl/pkg/io/ioutils"
)

// Publisher makes a committed output available somewhere else and returns
// where it ended up.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, path string) (string, error)
}

// LatestCopy keeps a stable "latest" copy next to the per-run outputs. Only
// outputs whose extension matches Ext are copied.
type LatestCopy struct {
	Path string
	Ext  string
}

func NewLatestCopy(root string) *LatestCopy {
	return &LatestCopy{Path: filepath.Join(root, "latest_processed.csv"), Ext: ".csv"}
}

func (l *LatestCopy) Name() string { return "latest" }

func (l *LatestCopy) Publish(_ context.Context, path string) (string, error) {
	if l.Ext != "" && !strings.EqualFold(filepath.Ext(path), l.Ext) {
		return "", nil
	}
	if err := iox.CopyFileAtomic(path, l.Path); err != nil {
		return "", etl.Resource("publish latest", l.Path, err)
	}
	return l.Path, nil
}
