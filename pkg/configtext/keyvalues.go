// Package configtext reads and edits the companion application's config file.
package configtext

import (
	"maps"
	"slices"
	"strings"
)

// KeyValues is a flat view of the key=value lines of a config file. Section
// headers and lines without '=' are ignored; later keys override earlier ones.
type KeyValues map[string]string

func Parse(text string) KeyValues {
	kv := KeyValues{}
	for line := range strings.Lines(text) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return kv
}

func Load(path string) (KeyValues, error) {
	text, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

// Format renders kv as key=value lines ordered by key. Section headers and
// comments of the source text are not kept.
func (kv KeyValues) Format() string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kv[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// Save replaces the file at path with the formatted map.
func (kv KeyValues) Save(path string) error {
	return WriteFile(path, kv.Format())
}
