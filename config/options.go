// Package config loads and validates the options that govern one Grafeo
// database instance: storage path, memory budget, executor parallelism,
// WAL durability policy, and the handful of structural toggles spec §6
// names as recognized configuration keys.
//
// Configuration is read from environment variables (LoadFromEnv) or a YAML
// file (LoadFile), following the teacher's two-source pattern
// (pkg/config's env-var loader, apoc/config.go's YAML loader) rather than
// picking just one — callers typically call LoadFile for the on-disk
// default and then let LoadFromEnv override individual keys for container
// deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grafeo-db/grafeo/gerrors"
)

// SyncMode controls how aggressively the WAL fsyncs before acknowledging a
// commit (spec §6: "sync_mode ∈ {full, normal, off} — WAL fsync policy").
type SyncMode string

const (
	// SyncFull fsyncs every committed transaction's log frame before the
	// commit returns — the only mode under which R3's crash-restart
	// property holds.
	SyncFull SyncMode = "full"
	// SyncNormal fsyncs when the log rotates to a new segment and on
	// checkpoint, not on each commit, trading a window of possible data loss
	// for throughput. No fsync runs on a periodic interval.
	SyncNormal SyncMode = "normal"
	// SyncOff never explicitly fsyncs, relying on the OS to flush
	// eventually. Intended for scratch/throwaway databases only.
	SyncOff SyncMode = "off"
)

func (m SyncMode) valid() bool {
	switch m {
	case SyncFull, SyncNormal, SyncOff:
		return true
	default:
		return false
	}
}

// Logger is the structured-logging plug point Options carries, mirroring
// the teacher's badger.Logger plug point (pkg/storage/badger.go's
// Opts.Logger). Its default is a no-op logger, and nothing in Grafeo writes
// to it; storage/badgerlog.go separately adapts zerolog.Logger to
// badger.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Options holds the configuration keys spec §6 recognizes, plus the
// ambient Logger and SpillDir knobs a real embedding needs but spec.md
// leaves implicit.
type Options struct {
	// Path is the database directory. Empty means in-memory only (no WAL,
	// no checkpoints, no data/ or wal/ subdirectories created).
	Path string

	// MemoryLimit is the soft memory budget in bytes. Zero means unlimited.
	// It is only validated (it must not be negative): nothing enforces the
	// budget, and nothing spills to SpillDir when it is exceeded.
	MemoryLimit int64

	// Threads sizes the executor's morsel worker pool (exec.WorkerPool).
	// Zero means "detected core count" (runtime.GOMAXPROCS(0)).
	Threads int

	// SyncMode is the WAL fsync policy. Defaults to SyncFull.
	SyncMode SyncMode

	// ReadOnly rejects any transaction that would append to the log.
	ReadOnly bool

	// BackwardEdges controls whether the adjacency index maintains the
	// inbound direction alongside outbound (spec I2). Defaults to true;
	// disabling it trades memory for losing reverse-traversal support.
	BackwardEdges bool

	// SpillDir names a spill directory. Defaults to Path/spill when Path is
	// set, os.TempDir() otherwise. Nothing writes to it.
	SpillDir string

	// Logger defaults to a no-op logger. Storage, checkpointing, and WAL
	// recovery do not write to it.
	Logger Logger

	// EncryptionKey is loaded from the config file or
	// GRAFEO_ENCRYPTION_KEY and carried here, but nothing reads it:
	// checkpoint snapshots and WAL segments are written unencrypted. Not
	// named in spec §6.
	EncryptionKey string
}

// DefaultOptions returns the zero-configuration defaults: in-memory,
// read-write, backward edges on, full fsync, no-op logger.
func DefaultOptions() *Options {
	return &Options{
		SyncMode:      SyncFull,
		BackwardEdges: true,
		Logger:        noopLogger{},
	}
}

// Validate checks Options for internally inconsistent or out-of-range
// values, following the teacher's Config.Validate pattern
// (pkg/config/config.go) of a single pre-use check rather than validating
// field-by-field at assignment time.
func (o *Options) Validate() error {
	if o.MemoryLimit < 0 {
		return gerrors.New(gerrors.KindUnsupported, fmt.Sprintf("memory_limit must be >= 0, got %d", o.MemoryLimit))
	}
	if o.Threads < 0 {
		return gerrors.New(gerrors.KindUnsupported, fmt.Sprintf("threads must be >= 0, got %d", o.Threads))
	}
	if o.SyncMode == "" {
		o.SyncMode = SyncFull
	}
	if !o.SyncMode.valid() {
		return gerrors.New(gerrors.KindUnsupported, fmt.Sprintf("sync_mode must be one of full|normal|off, got %q", o.SyncMode))
	}
	if o.ReadOnly && o.Path == "" {
		return gerrors.New(gerrors.KindUnsupported, "read_only requires a persistent path")
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.SpillDir == "" {
		if o.Path != "" {
			o.SpillDir = o.Path + string(os.PathSeparator) + "spill"
		} else {
			o.SpillDir = os.TempDir()
		}
	}
	return nil
}

// fileOptions mirrors Options for YAML decoding: field names are lowercase
// and snake_case to match spec §6's recognized key names exactly
// (`path`, `memory_limit`, `threads`, `sync_mode`, `read_only`,
// `backward_edges`), the same key-naming discipline the teacher's
// apoc/config.go uses for its own yaml-tagged Config struct.
type fileOptions struct {
	Path          string `yaml:"path"`
	MemoryLimit   string `yaml:"memory_limit"`
	Threads       int    `yaml:"threads"`
	SyncMode      string `yaml:"sync_mode"`
	ReadOnly      bool   `yaml:"read_only"`
	BackwardEdges *bool  `yaml:"backward_edges"`
	SpillDir      string `yaml:"spill_dir"`
	EncryptionKey string `yaml:"encryption_key"`
}

// LoadFile reads a grafeo.yaml-shaped configuration file at path, the same
// gopkg.in/yaml.v3 library the teacher uses for apoc/config.go, repurposed
// here for the top-level database configuration file instead of the APOC
// function toggle file.
func LoadFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "reading config file", err)
	}
	var fo fileOptions
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return nil, gerrors.Wrap(gerrors.KindParse, "parsing config file", err)
	}

	opts := DefaultOptions()
	opts.Path = fo.Path
	opts.Threads = fo.Threads
	opts.ReadOnly = fo.ReadOnly
	opts.SpillDir = fo.SpillDir
	opts.EncryptionKey = fo.EncryptionKey
	if fo.SyncMode != "" {
		opts.SyncMode = SyncMode(fo.SyncMode)
	}
	if fo.BackwardEdges != nil {
		opts.BackwardEdges = *fo.BackwardEdges
	}
	if fo.MemoryLimit != "" {
		opts.MemoryLimit = parseMemorySize(fo.MemoryLimit)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// LoadFromEnv loads Options from Grafeo's own environment variables
// (GRAFEO_PATH, GRAFEO_MEMORY_LIMIT, GRAFEO_THREADS, GRAFEO_SYNC_MODE,
// GRAFEO_READ_ONLY, GRAFEO_BACKWARD_EDGES, GRAFEO_SPILL_DIR,
// GRAFEO_ENCRYPTION_KEY), following the teacher's LoadFromEnv shape
// (pkg/config/config.go) but without any of the Neo4j-compatibility
// variable names — those belonged to the out-of-scope server surface.
// base, when non-nil, supplies defaults that unset environment variables
// fall back to (the usual call shape is LoadFromEnv on the result of LoadFile(path)
// so a file's settings and environment overrides compose).
func LoadFromEnv(base *Options) (*Options, error) {
	opts := base
	if opts == nil {
		opts = DefaultOptions()
	} else {
		cp := *opts
		opts = &cp
	}

	if v := os.Getenv("GRAFEO_PATH"); v != "" {
		opts.Path = v
	}
	if v := os.Getenv("GRAFEO_MEMORY_LIMIT"); v != "" {
		opts.MemoryLimit = parseMemorySize(v)
	}
	if v := os.Getenv("GRAFEO_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Threads = n
		}
	}
	if v := os.Getenv("GRAFEO_SYNC_MODE"); v != "" {
		opts.SyncMode = SyncMode(strings.ToLower(v))
	}
	if v := os.Getenv("GRAFEO_READ_ONLY"); v != "" {
		opts.ReadOnly = parseBool(v, opts.ReadOnly)
	}
	if v := os.Getenv("GRAFEO_BACKWARD_EDGES"); v != "" {
		opts.BackwardEdges = parseBool(v, opts.BackwardEdges)
	}
	if v := os.Getenv("GRAFEO_SPILL_DIR"); v != "" {
		opts.SpillDir = v
	}
	if v := os.Getenv("GRAFEO_ENCRYPTION_KEY"); v != "" {
		opts.EncryptionKey = v
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseBool(s string, defaultVal bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// parseMemorySize parses a human-readable byte size ("512MB", "2GB", a
// bare integer, or "0"/"unlimited"), following the teacher's
// parseMemorySize (pkg/config/config.go) byte-suffix grammar.
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{})   {}
func (noopLogger) Infof(string, ...interface{})    {}
func (noopLogger) Warningf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{})   {}
