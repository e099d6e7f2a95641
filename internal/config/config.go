package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "capture_server.cfg.json"

// CaptureConfig holds the batched processor settings.
type CaptureConfig struct {
	Mode                  string
	ExecutionInterval     time.Duration
	DefaultCaptureTime    float64
	DecaySpeed            float64 // unused, kept so older config files still load
	MinUnitsToCapture     int
	Tag                   string
	UnitFilter            string
	ParallelThreshold     int
	Workers               int
	ClientRefreshInterval time.Duration
	FrameRate             int
	LayoutFile            string
	Debug                 bool
}

// TickingConfig holds the always-ticking point defaults.
type TickingConfig struct {
	TickInterval      time.Duration
	CaptureTime       float64
	RecaptureTime     float64
	MultiUnitBonus    float64
	MaxCapturingUnits int
	CaptureRadius     float64
	IncomeInterval    time.Duration
	IncomeAmount      float64
	IdleDecay         bool
	Overlap           bool
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory sqlite backend settings.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebsocketConfig holds the observer stream settings.
type WebsocketConfig struct {
	URL                string
	Secret             string
	SnapshotsPerSecond float64
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Websocket WebsocketConfig
}

// DBConfig holds the postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// InfluxConfig holds the capture timeline settings.
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// UploadConfig points at the results server that receives match exports.
type UploadConfig struct {
	Enabled   bool
	ServerURL string
	APIKey    string
	Tag       string
}

// GraylogConfig holds the GELF output settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./capturelogs")
	viper.SetDefault("statusInterval", "10s")

	viper.SetDefault("capture.mode", "authority")
	viper.SetDefault("capture.executionInterval", "200ms")
	viper.SetDefault("capture.defaultCaptureTime", 5.0)
	viper.SetDefault("capture.decaySpeed", 0.5)
	viper.SetDefault("capture.minUnitsToCapture", 1)
	viper.SetDefault("capture.tag", "CapturePoint")
	viper.SetDefault("capture.unitFilter", "")
	viper.SetDefault("capture.parallelThreshold", 2048)
	viper.SetDefault("capture.workers", 0)
	viper.SetDefault("capture.clientRefreshInterval", "0s")
	viper.SetDefault("capture.frameRate", 30)
	viper.SetDefault("capture.layoutFile", "")
	viper.SetDefault("capture.debug", false)

	viper.SetDefault("ticking.tickInterval", "100ms")
	viper.SetDefault("ticking.captureTime", 10.0)
	viper.SetDefault("ticking.recaptureTime", 0.0)
	viper.SetDefault("ticking.multiUnitBonus", 0.5)
	viper.SetDefault("ticking.maxCapturingUnits", 3)
	viper.SetDefault("ticking.captureRadius", 300.0)
	viper.SetDefault("ticking.incomeInterval", "5s")
	viper.SetDefault("ticking.incomeAmount", 1.0)
	viper.SetDefault("ticking.idleDecay", false)
	viper.SetDefault("ticking.overlap", false)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./matches")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.snapshotsPerSecond", 10.0)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "capture")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "capture-metrics")
	viper.SetDefault("influx.bucket", "capture")
	viper.SetDefault("influx.backupDir", "./influx-backup")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.serverUrl", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "capture-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration parses a duration string such as "200ms". Bare numbers are
// read as nanoseconds, the way viper does.
func GetDuration(key string) time.Duration {
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d
	}
	return viper.GetDuration(key)
}

func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Mode:                  viper.GetString("capture.mode"),
		ExecutionInterval:     GetDuration("capture.executionInterval"),
		DefaultCaptureTime:    viper.GetFloat64("capture.defaultCaptureTime"),
		DecaySpeed:            viper.GetFloat64("capture.decaySpeed"),
		MinUnitsToCapture:     viper.GetInt("capture.minUnitsToCapture"),
		Tag:                   viper.GetString("capture.tag"),
		UnitFilter:            viper.GetString("capture.unitFilter"),
		ParallelThreshold:     viper.GetInt("capture.parallelThreshold"),
		Workers:               viper.GetInt("capture.workers"),
		ClientRefreshInterval: GetDuration("capture.clientRefreshInterval"),
		FrameRate:             viper.GetInt("capture.frameRate"),
		LayoutFile:            viper.GetString("capture.layoutFile"),
		Debug:                 viper.GetBool("capture.debug"),
	}
}

func GetTickingConfig() TickingConfig {
	return TickingConfig{
		TickInterval:      GetDuration("ticking.tickInterval"),
		CaptureTime:       viper.GetFloat64("ticking.captureTime"),
		RecaptureTime:     viper.GetFloat64("ticking.recaptureTime"),
		MultiUnitBonus:    viper.GetFloat64("ticking.multiUnitBonus"),
		MaxCapturingUnits: viper.GetInt("ticking.maxCapturingUnits"),
		CaptureRadius:     viper.GetFloat64("ticking.captureRadius"),
		IncomeInterval:    GetDuration("ticking.incomeInterval"),
		IncomeAmount:      viper.GetFloat64("ticking.incomeAmount"),
		IdleDecay:         viper.GetBool("ticking.idleDecay"),
		Overlap:           viper.GetBool("ticking.overlap"),
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:                viper.GetString("storage.websocket.url"),
			Secret:             viper.GetString("storage.websocket.secret"),
			SnapshotsPerSecond: viper.GetFloat64("storage.websocket.snapshotsPerSecond"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled:   viper.GetBool("upload.enabled"),
		ServerURL: viper.GetString("upload.serverUrl"),
		APIKey:    viper.GetString("upload.apiKey"),
		Tag:       viper.GetString("upload.tag"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
