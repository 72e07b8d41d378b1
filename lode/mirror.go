// Package lode mirrors a freshly written template pool into a lode Store.
//
// Each run lands under a Hive-partitioned prefix keyed by target, day and
// run id, next to a msgpack manifest describing the templates.
package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultDataset is the dataset name used when Config.Dataset is empty.
const DefaultDataset = "chunkprobe"

// ManifestName is the file name of the msgpack manifest.
const ManifestName = "manifest.msgpack"

// DeriveDay computes the partition day from the run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(start time.Time) string {
	return start.UTC().Format("2006-01-02")
}

// Config identifies the partition a run is mirrored into.
type Config struct {
	Dataset string
	// Target is the captured server, host:port.
	Target string
	// Day is the partition day, YYYY-MM-DD.
	Day   string
	RunID string
}

// Validate checks that the partition keys are present.
func (c *Config) Validate() error {
	if c.Target == "" {
		return errors.New("mirror target is required")
	}
	if c.RunID == "" {
		return errors.New("mirror run id is required")
	}
	if c.Day == "" {
		return errors.New("mirror day is required")
	}
	return nil
}

// File is one template put into the mirror.
type File struct {
	Name string
	X, Z int32
	Data []byte
}

// ManifestEntry describes one mirrored template.
type ManifestEntry struct {
	Name  string `msgpack:"name"`
	X     int32  `msgpack:"x"`
	Z     int32  `msgpack:"z"`
	Bytes int    `msgpack:"bytes"`
}

// Manifest is written as ManifestName next to the mirrored templates.
type Manifest struct {
	Dataset   string          `msgpack:"dataset"`
	Target    string          `msgpack:"target"`
	Day       string          `msgpack:"day"`
	RunID     string          `msgpack:"run_id"`
	CreatedAt time.Time       `msgpack:"created_at"`
	Files     []ManifestEntry `msgpack:"files"`
}

// Result summarizes a completed mirror.
type Result struct {
	// Prefix is the partition path the files were put under.
	Prefix string
	Files  int
	Bytes  int64
}

// Mirror puts a pool's templates into external storage.
type Mirror interface {
	PutPool(ctx context.Context, files []File) (*Result, error)
}

// PoolMirror is a lode Store backed Mirror.
type PoolMirror struct {
	config       Config
	storeFactory lode.StoreFactory
	now          func() time.Time

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewFSMirror creates a mirror rooted at a local directory.
func NewFSMirror(cfg Config, root string) (*PoolMirror, error) {
	return NewMirrorWithFactory(cfg, lode.NewFSFactory(root))
}

// NewMirrorWithFactory creates a mirror over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewMirrorWithFactory(cfg Config, factory lode.StoreFactory) (*PoolMirror, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PoolMirror{config: cfg, storeFactory: factory, now: time.Now}, nil
}

// Prefix returns the partition path every file of this run is put under.
// Format: datasets/<dataset>/partitions/target=<host_port>/day=<d>/run_id=<r>/files
func (m *PoolMirror) Prefix() string {
	return fmt.Sprintf("datasets/%s/partitions/target=%s/day=%s/run_id=%s/files",
		m.config.Dataset,
		partitionValue(m.config.Target),
		m.config.Day,
		m.config.RunID,
	)
}

// PutPool writes every file and then the manifest. The manifest goes last so
// its presence marks a complete mirror.
func (m *PoolMirror) PutPool(ctx context.Context, files []File) (*Result, error) {
	store, err := m.getOrCreateStore()
	if err != nil {
		return nil, WrapError("init", m.config.Dataset, err)
	}

	prefix := m.Prefix()
	manifest := Manifest{
		Dataset:   m.config.Dataset,
		Target:    m.config.Target,
		Day:       m.config.Day,
		RunID:     m.config.RunID,
		CreatedAt: m.now().UTC(),
		Files:     make([]ManifestEntry, 0, len(files)),
	}
	res := &Result{Prefix: prefix}

	for _, f := range files {
		if err := validName(f.Name); err != nil {
			return nil, err
		}
		p := path.Join(prefix, f.Name)
		if err := store.Put(ctx, p, bytes.NewReader(f.Data)); err != nil {
			return nil, WrapError("write", p, err)
		}
		manifest.Files = append(manifest.Files, ManifestEntry{Name: f.Name, X: f.X, Z: f.Z, Bytes: len(f.Data)})
		res.Files++
		res.Bytes += int64(len(f.Data))
	}

	data, err := msgpack.Marshal(&manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	p := path.Join(prefix, ManifestName)
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return nil, WrapError("write", p, err)
	}
	return res, nil
}

func (m *PoolMirror) getOrCreateStore() (lode.Store, error) {
	m.storeOnce.Do(func() {
		m.store, m.storeErr = m.storeFactory()
	})
	return m.store, m.storeErr
}

// DecodeManifest parses a manifest previously written by PutPool.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// partitionValue makes host:port safe as a Hive partition value.
func partitionValue(target string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(target)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid mirror file name %q", name)
	}
	return nil
}

// StubMirror records PutPool calls for testing.
type StubMirror struct {
	mu    sync.Mutex
	Calls [][]File
	Err   error
}

// PutPool implements Mirror by recording the call.
func (s *StubMirror) PutPool(_ context.Context, files []File) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, files)
	if s.Err != nil {
		return nil, s.Err
	}
	res := &Result{Prefix: "stub", Files: len(files)}
	for _, f := range files {
		res.Bytes += int64(len(f.Data))
	}
	return res, nil
}

var (
	_ Mirror = (*PoolMirror)(nil)
	_ Mirror = (*StubMirror)(nil)
)
