package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Upstream  MUpstreamConfig  `yaml:"upstream"`
	Cache     MCacheConfig     `yaml:"cache"`
	Events    MEventsConfig    `yaml:"events"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
	Tracking  MTrackingConfig  `yaml:"tracking"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout     int `yaml:"timeout"`
	MaxRetries         int `yaml:"retries"`
	ConcurrentRequests int `yaml:"concurrent_requests"`
}

type MUpstreamConfig struct {
	RPCURL            string `yaml:"rpc_url"`
	WebsocketURL      string `yaml:"websocket_url"`
	APIKey            string `yaml:"api_key"`
	ReadTimeoutSecs   int    `yaml:"read_timeout_seconds"`
	ReconnectWaitSecs int    `yaml:"reconnect_wait_seconds"`
	WriteTimeoutSecs  int    `yaml:"write_timeout_seconds"`
}

type MCacheConfig struct {
	RedisURL   string `yaml:"redis_url"` // empty = in-memory cache
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type MEventsConfig struct {
	Brokers []string `yaml:"brokers"` // empty = publishing disabled
	Topic   string   `yaml:"topic"`
}

type MAnalyticsConfig struct {
	FreshnessSeconds        int `yaml:"freshness_seconds"`
	ValuationTimeoutSecs    int `yaml:"valuation_timeout_seconds"`
	VelocityTimeoutSecs     int `yaml:"velocity_timeout_seconds"`
	ConcentrationTimeoutSec int `yaml:"concentration_timeout_seconds"`
	ChurnTimeoutSecs        int `yaml:"churn_timeout_seconds"`
	SignatureLimit          int `yaml:"signature_limit"`
	MinSampleSize           int `yaml:"min_sample_size"`
	ChurnWindowHours        int `yaml:"churn_window_hours"`
	LongHoldDays            int `yaml:"long_hold_days"`
}

type MTrackingConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	MaxAccountsDefault   int `yaml:"max_accounts_default"`
}
