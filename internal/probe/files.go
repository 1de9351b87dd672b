package probe

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// scanHistory returns history lines containing any token. Missing files
// are skipped; unreadable ones are an error.
func scanHistory(files []string, tokens []string) ([]string, error) {
	var hits []string
	for _, path := range files {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := historyCommand(scanner.Text())
			for _, tok := range tokens {
				if strings.Contains(line, tok) {
					hits = append(hits, line)
					break
				}
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// historyCommand strips the zsh extended-history prefix ": 1700000000:0;".
func historyCommand(line string) string {
	if strings.HasPrefix(line, ": ") {
		if i := strings.IndexByte(line, ';'); i > 0 {
			return line[i+1:]
		}
	}
	return line
}

// recentFiles lists regular files directly under dirs modified after since,
// newest first. Missing directories are skipped.
func recentFiles(dirs []string, since time.Time) ([]string, error) {
	type entry struct {
		path string
		mod  time.Time
	}
	var found []entry

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(since) {
				found = append(found, entry{filepath.Join(dir, e.Name()), info.ModTime()})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })
	paths := make([]string, 0, len(found))
	for _, f := range found {
		paths = append(paths, f.path)
	}
	return paths, nil
}

// desktopEntryNames reads the Name= key of every .desktop file under dirs.
func desktopEntryNames(dirs []string) ([]string, error) {
	var names []string
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ".desktop")
			if b, err := os.ReadFile(m); err == nil {
				for _, line := range strings.Split(string(b), "\n") {
					if v, ok := strings.CutPrefix(line, "Name="); ok {
						name = strings.TrimSpace(v)
						break
					}
				}
			}
			names = append(names, name)
		}
	}
	return names, nil
}
