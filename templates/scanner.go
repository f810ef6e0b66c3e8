package templates

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Scan walks the directory tree from root and collects all .toml files.
// A missing root yields no files.
func Scan(root string, logger *zap.Logger) ([]FileInfo, error) {
	logger.Debug("Scanning directory for template files", zap.String("root", root))
	var files []FileInfo

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Continue scanning on individual file errors
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".toml") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Error("Error getting file info", zap.String("path", path), zap.Error(err))
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}

		files = append(files, FileInfo{
			Path:    relPath,
			Root:    root,
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
