package config

import "time"

// Config holds runtime configuration for the catalyst server.
type Config struct {
	Environment   string
	Addr          string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string
	JWTSecret     string
	SourcesKey    string

	DockerHost  string
	Workdir     string
	ImagePrefix string
	BaseDomain  string

	PortRangeStart    int
	PortRangeEnd      int
	AllocatorAttempts int

	DefaultCPUMillicores int
	DefaultMemoryMB      int
	MaxCPUMillicores     int
	MaxMemoryMB          int

	BuildTimeout     time.Duration
	RunTimeout       time.Duration
	LifecycleTimeout time.Duration
	LockTTL          time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueBackend  string
	QueueWorkers  int

	ReconcileInterval      time.Duration
	ReconcileRemoveOrphans bool
}

// Load constructs a Config from environment variables.
func Load() Config {
	cfg := Config{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("CATALYST_ADDR", ":4000"),
		LogLevel:      GetString("LOG_LEVEL", "info"),
		DatabaseURL:   GetString("DATABASE_URL", ""),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:     GetString("JWT_SECRET", "supersecuresecret"),
		SourcesKey:    GetString("CATALYST_SOURCES_KEY", ""),

		DockerHost:  GetString("DOCKER_HOST", ""),
		Workdir:     GetString("CATALYST_WORKDIR", "/tmp/catalyst"),
		ImagePrefix: GetString("CATALYST_IMAGE_PREFIX", "catalyst"),
		BaseDomain:  GetString("CATALYST_BASE_DOMAIN", "catalyst.app"),

		PortRangeStart:    GetInt("PORT_RANGE_START", 20000),
		PortRangeEnd:      GetInt("PORT_RANGE_END", 29999),
		AllocatorAttempts: GetInt("ALLOCATOR_MAX_ATTEMPTS", 8),

		DefaultCPUMillicores: GetInt("DEFAULT_CPU_MILLICORES", 1000),
		DefaultMemoryMB:      GetInt("DEFAULT_MEMORY_MB", 512),
		MaxCPUMillicores:     GetInt("MAX_CPU_MILLICORES", 4000),
		MaxMemoryMB:          GetInt("MAX_MEMORY_MB", 4096),

		BuildTimeout:     GetSeconds("BUILD_TIMEOUT_SECONDS", 600),
		RunTimeout:       GetSeconds("RUN_TIMEOUT_SECONDS", 120),
		LifecycleTimeout: GetSeconds("LIFECYCLE_TIMEOUT_SECONDS", 30),

		RedisAddr:     GetString("REDIS_ADDR", ""),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		QueueBackend:  GetString("QUEUE_BACKEND", "inline"),
		QueueWorkers:  GetInt("QUEUE_WORKERS", 4),

		ReconcileInterval:      GetSeconds("RECONCILE_INTERVAL_SECONDS", 60),
		ReconcileRemoveOrphans: GetBool("RECONCILE_REMOVE_ORPHANS", false),
	}
	cfg.LockTTL = GetSeconds("LOCK_TTL_SECONDS", int((cfg.BuildTimeout+cfg.RunTimeout+time.Minute)/time.Second))
	return cfg
}
