package janitor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// LockFileName is the cross-process lock kept in the shared directory.
const LockFileName = ".janitor.lock"

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
	temp    bool
}

// Stats summarizes the shared cache directory.
type Stats struct {
	Dir        string
	Files      int
	TempFiles  int
	TotalBytes int64
	Oldest     time.Time
	Newest     time.Time
}

// isTemp reports whether name is an in-flight download or copy.
func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// isInternal reports whether name is bookkeeping the janitor never touches.
func isInternal(name string) bool {
	return name == LockFileName || strings.HasPrefix(name, ".link-probe-")
}

// listEntries stats the regular files directly under dir. A missing dir is
// created and reported as empty. Per-file stat failures are returned in
// statErrs and the file is skipped.
func listEntries(fsys afero.Fs, dir string, perm os.FileMode) (entries []cacheEntry, statErrs []error, err error) {
	infos, err := afero.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fsys.MkdirAll(dir, perm)
	}
	if err != nil {
		return nil, nil, err
	}
	entries = make([]cacheEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || isInternal(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if !info.Mode().IsRegular() {
			// ReadDir may report a zero mode for entries that vanished.
			fi, statErr := fsys.Stat(path)
			if statErr != nil {
				if !errors.Is(statErr, fs.ErrNotExist) {
					statErrs = append(statErrs, statErr)
				}
				continue
			}
			if !fi.Mode().IsRegular() {
				continue
			}
			info = fi
		}
		entries = append(entries, cacheEntry{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
			temp:    isTemp(name),
		})
	}
	return entries, statErrs, nil
}

// sortOldestFirst orders entries by modification time, then path.
func sortOldestFirst(entries []cacheEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})
}

func summarize(dir string, entries []cacheEntry) Stats {
	s := Stats{Dir: dir}
	for _, e := range entries {
		if e.temp {
			s.TempFiles++
			continue
		}
		s.Files++
		s.TotalBytes += e.size
		if s.Oldest.IsZero() || e.modTime.Before(s.Oldest) {
			s.Oldest = e.modTime
		}
		if e.modTime.After(s.Newest) {
			s.Newest = e.modTime
		}
	}
	return s
}
