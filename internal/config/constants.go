package config

// Lua schema field names and globals
const (
	luaGlobalScoopie   = "scoopie"
	luaFieldCacheDir   = "cache_dir"
	luaFieldBucketsDir = "buckets_dir"
	luaFieldLogLevel   = "log_level"
	luaFieldDownload   = "download"
	luaFieldMaxRetries = "max_retries"
	luaFieldConcurrent = "concurrent_downloads"
	luaFieldVerify     = "verify"
	luaFieldBuckets    = "buckets"
	luaFieldKeyring    = "keyring"
)

// Environment variables
const (
	EnvHome       = "SCOOPIE_HOME"
	EnvCacheDir   = "SCOOPIE_CACHE_DIR"
	EnvBucketsDir = "SCOOPIE_BUCKETS_DIR"
)

// Defaults and limits
const (
	DefaultMaxRetries          = 3
	DefaultConcurrentDownloads = 4
	DefaultLogLevel            = "warn"

	MaxRetriesLimit    = 10
	MaxConcurrentLimit = 64
	MaxConfigSize      = 1 << 20 // 1MB
	MaxBucketCount     = 256

	configFileName = "config.lua"
)
