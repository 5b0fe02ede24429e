package assist

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/buildscope/internal/registry"
)

// PathEntry is one entry of a directory listing.
type PathEntry struct {
	Name string
	Dir  bool
}

// PathLister lists directories for path proposals.
type PathLister interface {
	List(dir string) ([]PathEntry, error)
}

// OSPathLister lists the local file system.
type OSPathLister struct{}

func (OSPathLister) List(dir string) ([]PathEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]PathEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, PathEntry{Name: e.Name(), Dir: e.IsDir()})
	}
	return out, nil
}

// pathCandidate is a proposed path relative to what the user typed.
type pathCandidate struct {
	insert string
	dir    bool
}

// pathCandidates lists the paths extending base, which is resolved against
// the directory of the script at scriptPath. Listing errors yield no
// candidates. Directories come first when order is DIRECTORY_PATH, files
// when it is FILE_PATH.
func pathCandidates(lister PathLister, scriptPath, base string, order registry.Kind) []pathCandidate {
	if lister == nil || scriptPath == "" {
		return nil
	}
	slash := strings.LastIndexByte(base, '/')
	dirPart, start := base[:slash+1], base[slash+1:]

	var out []pathCandidate
	switch start {
	case "..":
		return []pathCandidate{{insert: base + "/", dir: true}}
	case ".":
		out = append(out, pathCandidate{insert: base + "/", dir: true})
	}

	dir := filepath.FromSlash(dirPart)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(scriptPath), dir)
	}
	entries, err := lister.List(dir)
	if err != nil {
		return out
	}
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := pathRank(entries[i], order), pathRank(entries[j], order)
		if ri != rj {
			return ri < rj
		}
		return entries[i].Name < entries[j].Name
	})
	for _, e := range entries {
		if !matchesPrefixOrEquals(e.Name, start) {
			continue
		}
		insert := dirPart + e.Name
		if e.Dir {
			insert += "/"
		}
		out = append(out, pathCandidate{insert: insert, dir: e.Dir})
	}
	return out
}

func pathRank(e PathEntry, order registry.Kind) int {
	switch {
	case order == registry.KindDirectoryPath && !e.Dir,
		order == registry.KindFilePath && e.Dir:
		return 1
	}
	return 0
}
