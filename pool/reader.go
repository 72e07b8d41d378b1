package pool

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/justapithecus/chunkprobe/capture"
)

// Template is one pool member read back from disk.
type Template struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	X     int32  `json:"x" yaml:"x"`
	Z     int32  `json:"z" yaml:"z"`
	Size  int    `json:"bytes" yaml:"bytes"`
	Body  []byte `json:"-" yaml:"-"`
}

// Load reads every pool member in dir, ordered by numeric index.
func Load(dir string) ([]Template, error) {
	names, err := Members(dir)
	if err != nil {
		return nil, fmt.Errorf("list pool %s: %w", dir, err)
	}

	templates := make([]Template, 0, len(names))
	for _, name := range names {
		idx, _ := parseIndex(name)
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		key, ok := capture.ChunkKey(body)
		if !ok {
			return nil, fmt.Errorf("template %s: %d bytes is too short for a chunk body", name, len(body))
		}
		templates = append(templates, Template{
			Index: idx,
			Name:  name,
			X:     key.X,
			Z:     key.Z,
			Size:  len(body),
			Body:  body,
		})
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Index < templates[j].Index })
	return templates, nil
}

// Patch returns a copy of a chunk body with its coordinates replaced.
func Patch(body []byte, x, z int32) ([]byte, error) {
	if len(body) < capture.MinBodySize {
		return nil, fmt.Errorf("chunk body is %d bytes, need at least %d", len(body), capture.MinBodySize)
	}
	out := append([]byte(nil), body...)
	binary.BigEndian.PutUint32(out[1:], uint32(x))
	binary.BigEndian.PutUint32(out[5:], uint32(z))
	return out, nil
}

// Summary aggregates a loaded pool for display.
type Summary struct {
	Dir        string     `json:"dir" yaml:"dir"`
	Count      int        `json:"count" yaml:"count"`
	TotalBytes int64      `json:"total_bytes" yaml:"total_bytes"`
	MinX       int32      `json:"min_x" yaml:"min_x"`
	MaxX       int32      `json:"max_x" yaml:"max_x"`
	MinZ       int32      `json:"min_z" yaml:"min_z"`
	MaxZ       int32      `json:"max_z" yaml:"max_z"`
	Templates  []Template `json:"templates" yaml:"templates"`
}

// Summarize computes counts and coordinate bounds for templates.
func Summarize(dir string, templates []Template) *Summary {
	s := &Summary{Dir: dir, Count: len(templates), Templates: templates}
	for i, t := range templates {
		s.TotalBytes += int64(t.Size)
		if i == 0 {
			s.MinX, s.MaxX, s.MinZ, s.MaxZ = t.X, t.X, t.Z, t.Z
			continue
		}
		s.MinX = min(s.MinX, t.X)
		s.MaxX = max(s.MaxX, t.X)
		s.MinZ = min(s.MinZ, t.Z)
		s.MaxZ = max(s.MaxZ, t.Z)
	}
	return s
}
