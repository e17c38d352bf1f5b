package batch

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hupe1980/facevault/ingest"
)

// ImagePattern matches image files at any depth, case-insensitively.
const ImagePattern = "**/*.{[jJ][pP][gG],[jJ][pP][eE][gG],[pP][nN][gG],[bB][mM][pP]}"

// IsImage reports whether the base name of name has an image extension.
func IsImage(name string) bool {
	ok, _ := doublestar.Match(path.Base(ImagePattern), filepath.Base(name))
	return ok
}

// ScanDir collects every image file below root in lexical order.
func ScanDir(root string) ([]ingest.Artifact, error) {
	var artifacts []ingest.Artifact

	err := doublestar.GlobWalk(os.DirFS(root), ImagePattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		artifacts = append(artifacts, ingest.Artifact{
			Name: d.Name(),
			Path: filepath.Join(root, filepath.FromSlash(p)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}
