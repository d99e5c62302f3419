package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/model"
)

// Walk enumerates .mp4 files under dir recursively. The file's modification
// time stands in for the recording timestamp: capture software writes the
// file once when the clip ends, so mtime marks the end of recording. Files
// whose container duration cannot be read are skipped with a warning rather
// than failing the whole scan.
func Walk(dir string) ([]model.RawFile, error) {
	var files []model.RawFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return eris.Wrapf(err, "scan: stat %s", path)
		}

		dur, err := ProbeDuration(path)
		if err != nil {
			zap.L().Warn("scan: unreadable container, skipping",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}

		files = append(files, model.RawFile{
			Path:      path,
			CreatedAt: info.ModTime().Add(-dur).UTC(),
			Duration:  dur,
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scan: walk %s", dir)
	}
	return files, nil
}
