package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	General  GeneralConfig  `mapstructure:"general"`
	VPoller  VPollerConfig  `mapstructure:"vpoller"`
	Command  CommandConfig  `mapstructure:"command"`
	Zabbix   ZabbixConfig   `mapstructure:"zabbix"`
	Mappings MappingsConfig `mapstructure:"mappings"`
	TaskLock TaskLockConfig `mapstructure:"task_lock"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Env     string `mapstructure:"env"`
	Project string `mapstructure:"project"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	Enabled  bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig configures the state store. An empty DSN runs without
// persistence.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	LogLevel        string        `mapstructure:"log_level"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	// RunRetention prunes sync_runs rows older than this; 0 keeps all.
	RunRetention    time.Duration `mapstructure:"run_retention"`
}

type GeneralConfig struct {
	// Interval between scheduled passes.
	Interval time.Duration `mapstructure:"interval"`
	// Loops stops scheduling after N passes; 0 runs forever.
	Loops int    `mapstructure:"loops"`
	Mode  string `mapstructure:"mode"`
	// Timezone used to read backup stamps from VM annotations.
	Timezone string `mapstructure:"timezone"`
	// RunOnStart runs one pass before the first tick.
	RunOnStart bool `mapstructure:"run_on_start"`
}

type VPollerConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	VCHost   string        `mapstructure:"vc_host"`
	Retries  int           `mapstructure:"retries"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CommandConfig struct {
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	ManID       string        `mapstructure:"man_id"`
	UserGroup   string        `mapstructure:"user_group"`
	Timeout     time.Duration `mapstructure:"timeout"`
	InsecureTLS bool          `mapstructure:"insecure_tls"`
}

type ZabbixConfig struct {
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Timeout       time.Duration `mapstructure:"timeout"`
	InsecureTLS   bool          `mapstructure:"insecure_tls"`
	HostGroup     string        `mapstructure:"hostgroup"`
	Template      string        `mapstructure:"template"`
	Proxy         string        `mapstructure:"proxy"`
	SenderHost    string        `mapstructure:"sender_host"`
	SenderPort    int           `mapstructure:"sender_port"`
	SenderTimeout time.Duration `mapstructure:"sender_timeout"`
	Flags         []string      `mapstructure:"flags"`
}

// SenderAddress returns the sender host, defaulting to the proxy name.
func (z ZabbixConfig) SenderAddress() string {
	if strings.TrimSpace(z.SenderHost) != "" {
		return z.SenderHost
	}
	return z.Proxy
}

type MappingRule struct {
	Source string `mapstructure:"source"`
	Target string `mapstructure:"target"`
}

// MappingsConfig overrides the default field tables. Empty lists keep the
// defaults.
type MappingsConfig struct {
	VirtualServer []MappingRule `mapstructure:"virtual_server"`
	IPAddress     []MappingRule `mapstructure:"ip_address"`
	Filesystem    []MappingRule `mapstructure:"filesystem"`
}

type TaskLockConfig struct {
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VFZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.project", "vfzsync")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.log_level", "silent")
	v.SetDefault("db.slow_threshold", "1s")
	v.SetDefault("db.run_retention", "720h")

	v.SetDefault("general.interval", "5m")
	v.SetDefault("general.loops", 0)
	v.SetDefault("general.mode", "all")
	v.SetDefault("general.timezone", "Local")
	v.SetDefault("general.run_on_start", true)

	v.SetDefault("vpoller.endpoint", "tcp://localhost:10123")
	v.SetDefault("vpoller.vc_host", "")
	v.SetDefault("vpoller.retries", 3)
	v.SetDefault("vpoller.timeout", "10s")

	v.SetDefault("command.url", "")
	v.SetDefault("command.man_id", "1001")
	v.SetDefault("command.user_group", "Adm|G")
	v.SetDefault("command.timeout", "5s")
	v.SetDefault("command.insecure_tls", false)

	v.SetDefault("zabbix.url", "")
	v.SetDefault("zabbix.timeout", "10s")
	v.SetDefault("zabbix.insecure_tls", true)
	v.SetDefault("zabbix.hostgroup", "FNT")
	v.SetDefault("zabbix.template", "Template SNMP VMware Guest")
	v.SetDefault("zabbix.proxy", "")
	v.SetDefault("zabbix.sender_port", 10051)
	v.SetDefault("zabbix.sender_timeout", "5s")
	v.SetDefault("zabbix.flags", []string{"cSdiMonitoring", "cSdiMonitoringSnmp", "cSdiNoShutdown", "cSdiBackupNeeded"})

	v.SetDefault("task_lock.backend", "memory")
	v.SetDefault("task_lock.prefix", "vfzsync:lock:")
	v.SetDefault("task_lock.ttl", "30m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
