package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides: storage.cache.containerName is
// read from CACHESWEEP_STORAGE_CACHE_CONTAINERNAME.
const EnvPrefix = "CACHESWEEP"

// Keys read on every scheduler iteration. They have no viper defaults; the
// resolver treats nil as absent.
const (
	KeyCacheConnectionString  = "storage.cache.connectionString"
	KeyCacheContainerName     = "storage.cache.containerName"
	KeyCacheContainerRootPath = "storage.cache.containerRootPath"

	KeyRetentionEnabled               = "storage.cache.retention.enabled"
	KeyRetentionNumberOfDays          = "storage.cache.retention.numberOfDays"
	KeyRetentionTestModeEnable        = "storage.cache.retention.testModeEnable"
	KeyRetentionTestModeSweepSeconds  = "storage.cache.retention.testModeSweepSeconds"
	KeyRetentionTestModeMaxAgeMinutes = "storage.cache.retention.testModeMaxAgeMinutes"
)

type Config struct {
	Storage       StorageConfig        `mapstructure:"storage"`
	Server        ServerConfig         `mapstructure:"server"`
	Log           LogConfig            `mapstructure:"log"`
	Notifications []NotificationConfig `mapstructure:"notifications"`
}

type StorageConfig struct {
	// CreateContainerIfNotExists applies to sections that do not set their own value.
	CreateContainerIfNotExists *bool         `mapstructure:"createContainerIfNotExists"`
	Media                      SectionConfig `mapstructure:"media"`
	Cache                      CacheConfig   `mapstructure:"cache"`
}

type SectionConfig struct {
	ConnectionString           string `mapstructure:"connectionString"`
	ContainerName              string `mapstructure:"containerName"`
	CreateContainerIfNotExists *bool  `mapstructure:"createContainerIfNotExists"`
}

type CacheConfig struct {
	SectionConfig     `mapstructure:",squash"`
	ContainerRootPath string          `mapstructure:"containerRootPath"`
	Retention         RetentionConfig `mapstructure:"retention"`
}

type RetentionConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	NumberOfDays          int  `mapstructure:"numberOfDays"`
	TestModeEnable        bool `mapstructure:"testModeEnable"`
	TestModeSweepSeconds  int  `mapstructure:"testModeSweepSeconds"`
	TestModeMaxAgeMinutes int  `mapstructure:"testModeMaxAgeMinutes"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	SmokeTests bool   `mapstructure:"smokeTests"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"maxSize"`    // megabytes
	MaxBackups int    `mapstructure:"maxBackups"` // number of rotated files
	MaxAge     int    `mapstructure:"maxAge"`     // days
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `mapstructure:"smtp_host"`
	SMTPPort int               `mapstructure:"smtp_port"`
	From     string            `mapstructure:"from"`
	To       string            `mapstructure:"to"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// CreateIfMissing resolves the effective create-container flag for a section:
// the section's own value, then the storage-wide value, then true.
func (s StorageConfig) CreateIfMissing(section SectionConfig) bool {
	if section.CreateContainerIfNotExists != nil {
		return *section.CreateContainerIfNotExists
	}
	if s.CreateContainerIfNotExists != nil {
		return *s.CreateContainerIfNotExists
	}
	return true
}

// LoadConfig reads path (optional) plus CACHESWEEP_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.smokeTests", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.maxSize", 100)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAge", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.console", true)

	// Registered so env-only deployments still unmarshal them.
	v.SetDefault("storage.media.connectionString", "")
	v.SetDefault("storage.media.containerName", "")

	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Values that only arrive through the environment are not visible to
	// Unmarshal unless viper already knows the key.
	cfg.Storage.Cache.ConnectionString = v.GetString(KeyCacheConnectionString)
	cfg.Storage.Cache.ContainerName = v.GetString(KeyCacheContainerName)
	cfg.Storage.Cache.ContainerRootPath = v.GetString(KeyCacheContainerRootPath)

	ModifyConfig(&cfg)
	return &cfg, nil
}

// ModifyConfig expands ${VAR} references in string settings.
func ModifyConfig(cfg *Config) {
	expandSection(&cfg.Storage.Media)
	expandSection(&cfg.Storage.Cache.SectionConfig)
	cfg.Storage.Cache.ContainerRootPath = os.ExpandEnv(cfg.Storage.Cache.ContainerRootPath)

	cfg.Server.Addr = os.ExpandEnv(cfg.Server.Addr)
	cfg.Log.Dir = os.ExpandEnv(cfg.Log.Dir)

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = os.ExpandEnv(nt.Type)
		for j := range nt.On {
			nt.On[j] = os.ExpandEnv(nt.On[j])
		}
		nt.Config.SMTPHost = os.ExpandEnv(nt.Config.SMTPHost)
		nt.Config.From = os.ExpandEnv(nt.Config.From)
		nt.Config.To = os.ExpandEnv(nt.Config.To)
		nt.Config.Username = os.ExpandEnv(nt.Config.Username)
		nt.Config.Password = os.ExpandEnv(nt.Config.Password)
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(v)
		}
	}
}

func expandSection(s *SectionConfig) {
	s.ConnectionString = os.ExpandEnv(s.ConnectionString)
	s.ContainerName = os.ExpandEnv(s.ContainerName)
}
