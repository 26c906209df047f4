package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".bmp":  {},
	".gif":  {},
	".tif":  {},
	".tiff": {},
}

// ListImages returns all image files directly under root, or root itself if
// it is a single image file. Results come back in natural order so
// "img_2.png" precedes "img_10.png".
func ListImages(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if IsImageFile(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsImageFile(e.Name()) {
			files = append(files, filepath.Join(root, e.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return NaturalLess(filepath.Base(files[i]), filepath.Base(files[j]))
	})
	return files, nil
}

// ListImagesRecursive walks the whole tree under root.
func ListImagesRecursive(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsImageFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	sort.Slice(files, func(i, j int) bool {
		return NaturalLess(files[i], files[j])
	})
	return files, err
}

// IsImageFile checks if a file has a supported image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := imageExts[ext]
	return ok
}

// NaturalLess orders strings treating digit runs as numbers.
func NaturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			an, arest := takeNumber(a)
			bn, brest := takeNumber(b)
			if an != bn {
				return an < bn
			}
			a, b = arest, brest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a = a[1:]
		b = b[1:]
	}
	return len(a) < len(b)
}

func takeNumber(s string) (int64, string) {
	var n int64
	i := 0
	for i < len(s) && isDigit(s[i]) {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	return n, s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
