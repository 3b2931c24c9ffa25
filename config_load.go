package kvstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// rawStoreConfig mirrors StoreConfig's on-disk, human-edited form: a
// humanjson (JSON with comments and trailing commas) document. Every
// field is optional; StoreConfig.applyDefaults fills in what's left zero.
type rawStoreConfig struct {
	Filename   string `json:"filename,omitempty"`
	CacheSize  uint64 `json:"cache_size,omitempty"`
	DiskSize   uint64 `json:"disk_size,omitempty"`
	PageSize   uint32 `json:"page_size,omitempty"`
	ExtentSize uint64 `json:"extent_size,omitempty"`

	AsyncQueueDepth uint32 `json:"async_queue_depth,omitempty"`

	MemtableCapacity   uint64 `json:"memtable_capacity,omitempty"`
	Fanout             uint32 `json:"fanout,omitempty"`
	MaxBranchesPerNode uint32 `json:"max_branches_per_node,omitempty"`

	BTreeRoughCountHeight uint32 `json:"btree_rough_count_height,omitempty"`
	FilterIndexSize       uint32 `json:"filter_index_size,omitempty"`
	FilterRemainderSize   uint32 `json:"filter_remainder_size,omitempty"`
	ReclaimThreshold      uint64 `json:"reclaim_threshold,omitempty"`

	UseLog   bool `json:"use_log,omitempty"`
	UseStats bool `json:"use_stats,omitempty"`
	UseShmem bool `json:"use_shmem,omitempty"`
}

func (r *rawStoreConfig) mergeInto(cfg *StoreConfig) {
	if r.Filename != "" {
		cfg.Filename = r.Filename
	}

	if r.CacheSize != 0 {
		cfg.CacheSize = r.CacheSize
	}

	if r.DiskSize != 0 {
		cfg.DiskSize = r.DiskSize
	}

	if r.PageSize != 0 {
		cfg.PageSize = r.PageSize
	}

	if r.ExtentSize != 0 {
		cfg.ExtentSize = r.ExtentSize
	}

	if r.AsyncQueueDepth != 0 {
		cfg.AsyncQueueDepth = r.AsyncQueueDepth
	}

	if r.MemtableCapacity != 0 {
		cfg.MemtableCapacity = r.MemtableCapacity
	}

	if r.Fanout != 0 {
		cfg.Fanout = r.Fanout
	}

	if r.MaxBranchesPerNode != 0 {
		cfg.MaxBranchesPerNode = r.MaxBranchesPerNode
	}

	if r.BTreeRoughCountHeight != 0 {
		cfg.BTreeRoughCountHeight = r.BTreeRoughCountHeight
	}

	if r.FilterIndexSize != 0 {
		cfg.FilterIndexSize = r.FilterIndexSize
	}

	if r.FilterRemainderSize != 0 {
		cfg.FilterRemainderSize = r.FilterRemainderSize
	}

	if r.ReclaimThreshold != 0 {
		cfg.ReclaimThreshold = r.ReclaimThreshold
	}

	cfg.UseLog = cfg.UseLog || r.UseLog
	cfg.UseStats = cfg.UseStats || r.UseStats
	cfg.UseShmem = cfg.UseShmem || r.UseShmem
}

// loadLayer reads one humanjson config file and merges it into cfg.
// A missing file is not an error; any other read/parse failure is.
func loadLayer(cfg *StoreConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read %s: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	var raw rawStoreConfig
	if err := json.Unmarshal(std, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	raw.mergeInto(cfg)

	return nil
}

// LoadStoreConfig layers configuration from, in increasing priority:
// built-in defaults, a global config file, a project-local config file,
// an explicit path (if non-empty), and finally any CLI overrides passed
// in explicitly by the caller. App must be set by the caller after
// loading; LoadStoreConfig never touches it.
func LoadStoreConfig(globalPath, projectPath, explicitPath string, overrides *StoreConfig) (*StoreConfig, error) {
	cfg := &StoreConfig{}

	layers := []string{globalPath, projectPath}
	if explicitPath != "" {
		layers = append(layers, explicitPath)
	}

	for _, p := range layers {
		if p == "" {
			continue
		}

		if err := loadLayer(cfg, p); err != nil {
			return nil, err
		}
	}

	if overrides != nil {
		mergeOverrides(cfg, overrides)
	}

	return cfg, nil
}

func mergeOverrides(cfg, overrides *StoreConfig) {
	raw := rawStoreConfig{
		Filename:              overrides.Filename,
		CacheSize:             overrides.CacheSize,
		DiskSize:              overrides.DiskSize,
		PageSize:              overrides.PageSize,
		ExtentSize:            overrides.ExtentSize,
		AsyncQueueDepth:       overrides.AsyncQueueDepth,
		MemtableCapacity:      overrides.MemtableCapacity,
		Fanout:                overrides.Fanout,
		MaxBranchesPerNode:    overrides.MaxBranchesPerNode,
		BTreeRoughCountHeight: overrides.BTreeRoughCountHeight,
		FilterIndexSize:       overrides.FilterIndexSize,
		FilterRemainderSize:   overrides.FilterRemainderSize,
		ReclaimThreshold:      overrides.ReclaimThreshold,
		UseLog:                overrides.UseLog,
		UseStats:              overrides.UseStats,
		UseShmem:              overrides.UseShmem,
	}

	raw.mergeInto(cfg)

	if overrides.App != nil {
		cfg.App = overrides.App
	}
}

// SaveStoreConfig writes cfg's non-zero fields as humanjson to path,
// replacing any existing file atomically (rename-in-place) so a reader
// never observes a partially-written config.
func SaveStoreConfig(cfg *StoreConfig, path string) error {
	raw := rawStoreConfig{
		Filename:              cfg.Filename,
		CacheSize:             cfg.CacheSize,
		DiskSize:              cfg.DiskSize,
		PageSize:              cfg.PageSize,
		ExtentSize:            cfg.ExtentSize,
		AsyncQueueDepth:       cfg.AsyncQueueDepth,
		MemtableCapacity:      cfg.MemtableCapacity,
		Fanout:                cfg.Fanout,
		MaxBranchesPerNode:    cfg.MaxBranchesPerNode,
		BTreeRoughCountHeight: cfg.BTreeRoughCountHeight,
		FilterIndexSize:       cfg.FilterIndexSize,
		FilterRemainderSize:   cfg.FilterRemainderSize,
		ReclaimThreshold:      cfg.ReclaimThreshold,
		UseLog:                cfg.UseLog,
		UseStats:              cfg.UseStats,
		UseShmem:              cfg.UseShmem,
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// DefaultGlobalConfigPath returns the platform config-home path for a
// global kvstore config file, e.g. ~/.config/kvstore/config.jsonc.
func DefaultGlobalConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "kvstore", "config.jsonc"), nil
}
