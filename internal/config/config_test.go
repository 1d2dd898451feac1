package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Mailer != "log" || cfg.DocStore != "local" || cfg.TokenExpiryDays != 7 || !cfg.DefaultPro {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.NeedsAWS() {
		t.Error("defaults should not need AWS")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "stockwatch.yaml")
	os.WriteFile(yamlPath, []byte(`
port: 9000
base_url: https://shop.example.com/
mailer: smtp
smtp:
  host: mail.example.com
  port: 2525
default_threshold: 3
po_prefix: ACME
`), 0o600)
	envPath := filepath.Join(dir, "test.env")
	os.WriteFile(envPath, []byte("STOCKWATCH_SITE_NAME=Dotenv Shop\n"), 0o600)

	t.Setenv("STOCKWATCH_PORT", "9100")
	t.Setenv("STOCKWATCH_SMS_ENABLED", "true")
	t.Setenv("STOCKWATCH_SITE_NAME", "")
	os.Unsetenv("STOCKWATCH_SITE_NAME")

	cfg, err := Load([]string{"-config", yamlPath, "-env-file", envPath, "-port", "9200"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9200 {
		t.Errorf("flag should win, port = %d", cfg.Port)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != 2525 || cfg.POPrefix != "ACME" || cfg.DefaultThreshold != 3 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.BaseURL != "https://shop.example.com" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
	if !cfg.SMSEnabled || !cfg.NeedsAWS() {
		t.Error("env bool not applied")
	}
	if cfg.SiteName != "Dotenv Shop" {
		t.Errorf("dotenv value not applied: %q", cfg.SiteName)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(yamlPath, []byte("port: 9000\n"), 0o600)
	t.Setenv("STOCKWATCH_PORT", "9100")
	cfg, err := Load([]string{"-config", yamlPath, noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		env, val, want string
	}{
		{"STOCKWATCH_MAILER", "pigeon", "unknown mailer"},
		{"STOCKWATCH_DOC_STORE", "s3", "s3_bucket"},
		{"STOCKWATCH_PORT", "abc", "STOCKWATCH_PORT"},
		{"STOCKWATCH_TOKEN_EXPIRY_DAYS", "0", "token_expiry_days"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load([]string{noEnvFile(t)})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
