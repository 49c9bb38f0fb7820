package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Linkage LinkageConfig `yaml:"linkage" mapstructure:"linkage"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LinkageConfig configures the program linkage batch job.
type LinkageConfig struct {
	ReportPath       string           `yaml:"report_path" mapstructure:"report_path"`
	ReviewXLSXPath   string           `yaml:"review_xlsx_path" mapstructure:"review_xlsx_path"`
	OverridesPath    string           `yaml:"overrides_path" mapstructure:"overrides_path"`
	WritesPerSecond  float64          `yaml:"writes_per_second" mapstructure:"writes_per_second"`
	OrgStopwords     []string         `yaml:"org_stopwords" mapstructure:"org_stopwords"`
	OrgReviewSample  int              `yaml:"org_review_sample" mapstructure:"org_review_sample"`
	LinkReviewSample int              `yaml:"link_review_sample" mapstructure:"link_review_sample"`
	Thresholds       ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
}

// LinkConfidenceFloor is the lowest link_min_confidence accepted. No
// intervention link is written below it.
const LinkConfidenceFloor = 0.90

// ThresholdsConfig holds the scoring cut-offs used by the matchers.
type ThresholdsConfig struct {
	OrgAccept         float64 `yaml:"org_accept" mapstructure:"org_accept"`
	OrgMargin         float64 `yaml:"org_margin" mapstructure:"org_margin"`
	OrgCoreOverlap    float64 `yaml:"org_core_overlap" mapstructure:"org_core_overlap"`
	NameOverlap       float64 `yaml:"name_overlap" mapstructure:"name_overlap"`
	LinkMinConfidence float64 `yaml:"link_min_confidence" mapstructure:"link_min_confidence"`
}

// ServerConfig configures the governance API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultOrgStopwords are the tokens dropped when computing an
// organization's core name.
var DefaultOrgStopwords = []string{
	"the", "and", "pty", "ltd", "limited", "inc", "incorporated", "co",
	"company", "services", "service", "consultancy", "consulting",
	"collective", "council", "program", "programs", "initiative",
	"initiatives", "group", "foundation", "association", "organisation",
	"organization",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ALMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("linkage.report_path", "output/alma-program-linkage-report.json")
	v.SetDefault("linkage.review_xlsx_path", "")
	v.SetDefault("linkage.overrides_path", "")
	v.SetDefault("linkage.writes_per_second", 0)
	v.SetDefault("linkage.org_stopwords", DefaultOrgStopwords)
	v.SetDefault("linkage.org_review_sample", 200)
	v.SetDefault("linkage.link_review_sample", 300)
	v.SetDefault("linkage.thresholds.org_accept", 0.94)
	v.SetDefault("linkage.thresholds.org_margin", 0.05)
	v.SetDefault("linkage.thresholds.org_core_overlap", 0.92)
	v.SetDefault("linkage.thresholds.name_overlap", 0.85)
	v.SetDefault("linkage.thresholds.link_min_confidence", LinkConfidenceFloor)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
