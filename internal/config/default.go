package config

import "time"

type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Resolver    ResolverConfig    `yaml:"resolver" envPrefix:"RESOLVER_"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" envPrefix:"OBJECT_STORE_"`
	Cache       CacheConfig       `yaml:"cache" envPrefix:"CACHE_"`
	Channels    ChannelsConfig    `yaml:"channels" envPrefix:"CHANNELS_"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" envPrefix:"SCHEDULER_"`
}

type ServerConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
}

type ResolverConfig struct {
	// Candidates are tried in this exact order; order never adapts to past results.
	Candidates       []string      `yaml:"candidates" env:"CANDIDATES" envSeparator:","`
	ArtifactName     string        `yaml:"artifact_name" env:"ARTIFACT_NAME"`
	MemoryTTL        time.Duration `yaml:"memory_ttl" env:"MEMORY_TTL"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	RemoteMinBytes   int64         `yaml:"remote_min_bytes" env:"REMOTE_MIN_BYTES"`
	OverrideMinBytes int64         `yaml:"override_min_bytes" env:"OVERRIDE_MIN_BYTES"`
	OverrideMaxBytes int64         `yaml:"override_max_bytes" env:"OVERRIDE_MAX_BYTES"`
	UserAgent        string        `yaml:"user_agent" env:"USER_AGENT"`
}

type ObjectStoreConfig struct {
	// Dir empty means this deployment has no durable object store.
	Dir string `yaml:"dir" env:"DIR"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend" env:"BACKEND"` // badger | none
	Path       string        `yaml:"path" env:"PATH"`       // empty = <state dir>/cache, ":memory:" = throwaway
	MaxSize    int64         `yaml:"max_size" env:"MAX_SIZE"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

type ChannelsConfig struct {
	Sources      []string      `yaml:"sources" env:"SOURCES" envSeparator:","`
	DBPath       string        `yaml:"db_path" env:"DB_PATH"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
}

type SchedulerConfig struct {
	Cron            string        `yaml:"cron" env:"CRON"`
	TaskTimeout     time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"MIGRATE_ON_START"`
	MigrateEveryRun bool          `yaml:"migrate_every_run" env:"MIGRATE_EVERY_RUN"`
}

const (
	BackendBadger = "badger"
	BackendNone   = "none"

	// CacheMemoryPath opts the badger backend into a throwaway in-memory store.
	CacheMemoryPath = ":memory:"

	EnvPrefix = "WARDEN_"
)

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Address: "127.0.0.1:8787"},
		Resolver: ResolverConfig{
			ArtifactName:     "plugin.jar",
			MemoryTTL:        30 * time.Minute,
			FetchTimeout:     15 * time.Second,
			RemoteMinBytes:   1 << 10,
			OverrideMinBytes: 1 << 10,
			OverrideMaxBytes: 64 << 20,
			UserAgent:        "warden",
		},
		Cache: CacheConfig{
			Backend:    BackendBadger,
			MaxSize:    512 << 20,
			DefaultTTL: 24 * time.Hour,
		},
		Channels: ChannelsConfig{
			FetchTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Cron:           "@every 30m",
			TaskTimeout:    2 * time.Minute,
			MigrateOnStart: true,
		},
	}
}

// applyDefaults fills zero values left behind by a sparse file or environment.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Resolver.ArtifactName == "" {
		c.Resolver.ArtifactName = d.Resolver.ArtifactName
	}
	if c.Resolver.MemoryTTL <= 0 {
		c.Resolver.MemoryTTL = d.Resolver.MemoryTTL
	}
	if c.Resolver.FetchTimeout <= 0 {
		c.Resolver.FetchTimeout = d.Resolver.FetchTimeout
	}
	if c.Resolver.RemoteMinBytes <= 0 {
		c.Resolver.RemoteMinBytes = d.Resolver.RemoteMinBytes
	}
	if c.Resolver.OverrideMinBytes <= 0 {
		c.Resolver.OverrideMinBytes = d.Resolver.OverrideMinBytes
	}
	if c.Resolver.OverrideMaxBytes <= 0 {
		c.Resolver.OverrideMaxBytes = d.Resolver.OverrideMaxBytes
	}
	if c.Resolver.UserAgent == "" {
		c.Resolver.UserAgent = d.Resolver.UserAgent
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = d.Cache.MaxSize
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = d.Cache.DefaultTTL
	}
	if c.Channels.FetchTimeout <= 0 {
		c.Channels.FetchTimeout = d.Channels.FetchTimeout
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = d.Scheduler.Cron
	}
	if c.Scheduler.TaskTimeout <= 0 {
		c.Scheduler.TaskTimeout = d.Scheduler.TaskTimeout
	}
}
