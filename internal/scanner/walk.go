package scanner

import (
	"os"
	"path/filepath"
	"sort"
)

// titleDir is one `<root>/<author>/<title>` directory discovered by
// walkLibrary, along with every regular file it directly contains.
type titleDir struct {
	Author string
	Title  string // folder name, used verbatim for id derivation
	Path   string
	Files  []string // absolute paths, unsorted
}

// walkLibrary enumerates the three-level `<root>/<author>/<title>`
// layout under root. Unreadable directories are skipped (never abort a
// scan); the caller is responsible for logging.
func walkLibrary(root string) ([]titleDir, []error) {
	var dirs []titleDir
	var errs []error

	authorEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{err}
	}

	for _, authorEntry := range authorEntries {
		if !authorEntry.IsDir() || isHidden(authorEntry.Name()) {
			continue
		}
		authorPath := filepath.Join(root, authorEntry.Name())

		titleEntries, err := os.ReadDir(authorPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, titleEntry := range titleEntries {
			if !titleEntry.IsDir() || isHidden(titleEntry.Name()) {
				continue
			}
			titlePath := filepath.Join(authorPath, titleEntry.Name())

			fileEntries, err := os.ReadDir(titlePath)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			var files []string
			for _, f := range fileEntries {
				if f.IsDir() || isHidden(f.Name()) {
					continue
				}
				files = append(files, filepath.Join(titlePath, f.Name()))
			}
			sort.Strings(files)

			dirs = append(dirs, titleDir{
				Author: authorEntry.Name(),
				Title:  titleEntry.Name(),
				Path:   titlePath,
				Files:  files,
			})
		}
	}

	return dirs, errs
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
