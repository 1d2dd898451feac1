// Package config loads service configuration from defaults, an optional YAML
// file, the environment (with an optional .env file) and command-line flags,
// in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STOCKWATCH_"

type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Config struct {
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	BaseURL  string `yaml:"base_url"`
	SiteName string `yaml:"site_name"`

	// Mailer is one of log, smtp or ses.
	Mailer      string `yaml:"mailer"`
	SMTP        SMTP   `yaml:"smtp"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	ReplyTo     string `yaml:"reply_to"`

	AWSRegion   string `yaml:"aws_region"`
	SMSEnabled  bool   `yaml:"sms_enabled"`
	SMSSenderID string `yaml:"sms_sender_id"`

	// DocStore is local or s3.
	DocStore string `yaml:"doc_store"`
	DocDir   string `yaml:"doc_dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`

	DefaultThreshold int    `yaml:"default_threshold"`
	TokenExpiryDays  int    `yaml:"token_expiry_days"`
	POPrefix         string `yaml:"po_prefix"`

	LicenseKey string `yaml:"license_key"`
	DefaultPro bool   `yaml:"default_pro"`

	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	AuditRetentionDays int `yaml:"audit_retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:               8080,
		DBPath:             "stockwatch.db",
		BaseURL:            "http://localhost:8080",
		SiteName:           "StockWatch",
		Mailer:             "log",
		SMTP:               SMTP{Port: 587},
		FromAddress:        "noreply@example.com",
		FromName:           "StockWatch",
		AWSRegion:          "us-east-1",
		SMSSenderID:        "StockWatch",
		DocStore:           "local",
		DocDir:             "documents",
		S3Prefix:           "stockwatch/",
		DefaultThreshold:   5,
		TokenExpiryDays:    7,
		POPrefix:           "PO",
		DefaultPro:         true,
		AdminUsername:      "admin",
		AuditRetentionDays: 365,
	}
}

// Load builds the configuration for args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("stockwatch", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(EnvPrefix+"CONFIG"), "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Optional dotenv file")
	port := fs.Int("port", cfg.Port, "HTTP port")
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path")
	baseURL := fs.String("base-url", cfg.BaseURL, "Public base URL used in emailed links")
	mailer := fs.String("mailer", cfg.Mailer, "Mail transport: log, smtp or ses")
	docStore := fs.String("doc-store", cfg.DocStore, "Purchase order document store: local or s3")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := cfg.loadYAML(*configPath); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "base-url":
			cfg.BaseURL = *baseURL
		case "mailer":
			cfg.Mailer = *mailer
		case "doc-store":
			cfg.DocStore = *docStore
		}
	})

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	log.Printf("config: loaded %s", path)
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DB_PATH":        &c.DBPath,
		"BASE_URL":       &c.BaseURL,
		"SITE_NAME":      &c.SiteName,
		"MAILER":         &c.Mailer,
		"SMTP_HOST":      &c.SMTP.Host,
		"SMTP_USER":      &c.SMTP.User,
		"SMTP_PASSWORD":  &c.SMTP.Password,
		"FROM_ADDRESS":   &c.FromAddress,
		"FROM_NAME":      &c.FromName,
		"REPLY_TO":       &c.ReplyTo,
		"AWS_REGION":     &c.AWSRegion,
		"SMS_SENDER_ID":  &c.SMSSenderID,
		"DOC_STORE":      &c.DocStore,
		"DOC_DIR":        &c.DocDir,
		"S3_BUCKET":      &c.S3Bucket,
		"S3_PREFIX":      &c.S3Prefix,
		"PO_PREFIX":      &c.POPrefix,
		"LICENSE_KEY":    &c.LicenseKey,
		"ADMIN_USERNAME": &c.AdminUsername,
		"ADMIN_PASSWORD": &c.AdminPassword,
	}
	for k, dst := range strs {
		if v, ok := lookup(EnvPrefix + k); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                 &c.Port,
		"SMTP_PORT":            &c.SMTP.Port,
		"DEFAULT_THRESHOLD":    &c.DefaultThreshold,
		"TOKEN_EXPIRY_DAYS":    &c.TokenExpiryDays,
		"AUDIT_RETENTION_DAYS": &c.AuditRetentionDays,
	}
	for k, dst := range ints {
		if v, ok := lookup(EnvPrefix + k); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"SMS_ENABLED": &c.SMSEnabled,
		"DEFAULT_PRO": &c.DefaultPro,
	}
	for k, dst := range bools {
		if v, ok := lookup(EnvPrefix + k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks enumerations and required combinations.
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	switch c.Mailer {
	case "log", "ses":
	case "smtp":
		if c.SMTP.Host == "" {
			problems = append(problems, "smtp mailer needs smtp.host")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown mailer %q", c.Mailer))
	}
	switch c.DocStore {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			problems = append(problems, "s3 document store needs s3_bucket")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown doc_store %q", c.DocStore))
	}
	if c.DefaultThreshold < 0 {
		problems = append(problems, "default_threshold must be non-negative")
	}
	if c.TokenExpiryDays <= 0 {
		problems = append(problems, "token_expiry_days must be positive")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// NeedsAWS reports whether any AWS-backed component is enabled.
func (c *Config) NeedsAWS() bool {
	return c.Mailer == "ses" || c.SMSEnabled || c.DocStore == "s3"
}
