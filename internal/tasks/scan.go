package tasks

import (
	"path/filepath"
	"sort"

	"photofinish/internal/fsutil"
)

// ScanResult captures detected assets.
type ScanResult struct {
	Images []string
	Groups []ImageGroup
}

// ImageGroup represents a set of sibling images that could become one collage.
type ImageGroup struct {
	BasePath string
	Files    []string
	Count    int
}

// Scan walks the directory tree and groups images by parent directory, each
// group sorted in natural filename order.
func Scan(input string) (ScanResult, error) {
	files, err := fsutil.ListImagesRecursive(input)
	if err != nil {
		return ScanResult{}, err
	}

	dirMap := map[string][]string{}
	for _, f := range files {
		dirMap[filepath.Dir(f)] = append(dirMap[filepath.Dir(f)], f)
	}

	var groups []ImageGroup
	for dir, fs := range dirMap {
		sort.Slice(fs, func(i, j int) bool {
			return fsutil.NaturalLess(filepath.Base(fs[i]), filepath.Base(fs[j]))
		})
		groups = append(groups, ImageGroup{
			BasePath: dir,
			Files:    fs,
			Count:    len(fs),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].BasePath < groups[j].BasePath })

	return ScanResult{Images: files, Groups: groups}, nil
}
