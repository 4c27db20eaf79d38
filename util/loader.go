package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/visiondrop/images"
)

// ImageFile is a supported image in a directory listing.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Name is the base name of the file.
	Name string
	// Size is the file size in bytes.
	Size int64
}

// ListImageFiles lists the supported image files in a directory.
//
// Subdirectories and hidden files are skipped. Entries are sorted by name,
// case-insensitively.
//
// Arguments:
// - dir: Directory path to list.
//
// Returns:
// - []ImageFile: The image files found.
// - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !images.IsSupportedExtension(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, ImageFile{
			Path: filepath.Join(dir, name),
			Name: name,
			Size: info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})

	return files, nil
}
