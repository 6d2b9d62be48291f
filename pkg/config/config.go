package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Oracle   OracleConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type OracleConfig struct {
	Provider       string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	CacheTTLMin    int
	StaticPatterns map[string]string
}

type PipelineConfig struct {
	SourceField              string
	CopyFields               []string
	BatchSize                int
	GenerationSampleSize     int
	ValidationSampleSize     int
	ValidationThreshold      float64
	MaxRetries               int
	Parallelism              int
	KeepFailures             bool
	AcceptUserBelowThreshold bool
	SinkWriteAttempts        int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/logsmith")

	viper.SetEnvPrefix("LOGSMITH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/logsmith.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("oracle.provider", "openai")
	viper.SetDefault("oracle.model", "gpt-4")
	viper.SetDefault("oracle.temperature", 0.2)
	viper.SetDefault("oracle.maxTokens", 512)
	viper.SetDefault("oracle.timeoutSec", 60)
	viper.SetDefault("oracle.cacheTTLMin", 60)

	viper.SetDefault("pipeline.sourceField", "content")
	viper.SetDefault("pipeline.batchSize", 500)
	viper.SetDefault("pipeline.generationSampleSize", 10)
	viper.SetDefault("pipeline.validationSampleSize", 20)
	viper.SetDefault("pipeline.validationThreshold", 0.5)
	viper.SetDefault("pipeline.maxRetries", 2)
	viper.SetDefault("pipeline.parallelism", 1)
	viper.SetDefault("pipeline.keepFailures", false)
	viper.SetDefault("pipeline.acceptUserBelowThreshold", true)
	viper.SetDefault("pipeline.sinkWriteAttempts", 3)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
