package vfs

import (
	"errors"
	"io/fs"
	"strings"
)

// ResolveCase maps a case-insensitive share path onto the names that exist
// on disk. Each missing component is looked up with a case-folded scan of
// its parent; the first component that matches nothing ends the walk and
// the remainder is returned as given, so callers can still create it.
func ResolveCase(fsys FS, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if _, err := fsys.Lstat(name); err == nil {
		return name, nil
	}

	parts := strings.Split(name, "/")
	resolved := make([]string, 0, len(parts))
	for i, part := range parts {
		dir := strings.Join(resolved, "/")
		candidate := part
		if dir != "" {
			candidate = dir + "/" + part
		}
		if _, err := fsys.Lstat(candidate); err == nil {
			resolved = append(resolved, part)
			continue
		}

		entries, err := fsys.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return strings.Join(append(resolved, parts[i:]...), "/"), nil
			}
			return "", err
		}
		match := ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), part) {
				match = e.Name()
				break
			}
		}
		if match == "" {
			return strings.Join(append(resolved, parts[i:]...), "/"), nil
		}
		resolved = append(resolved, match)
	}
	return strings.Join(resolved, "/"), nil
}
