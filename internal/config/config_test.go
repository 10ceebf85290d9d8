package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := FromEnv()
	if cfg.DB.Host != "localhost" || cfg.DB.Port != 5432 || cfg.DB.Name != "doctors" {
		t.Errorf("db defaults = %+v", cfg.DB)
	}
	if cfg.Portal.BaseURL != DefaultBaseURL {
		t.Errorf("portal base = %q", cfg.Portal.BaseURL)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("MAIL_USERNAME", "ops@example.com")
	t.Setenv("MAIL_PASSWORD", "secret")
	t.Setenv("MAIL_TO", "alerts@example.com")
	t.Setenv("MAIL_ENCRYPTION", "tls")

	cfg := FromEnv()
	if cfg.DB.Host != "db.internal" || cfg.DB.Port != 6432 {
		t.Errorf("db = %+v", cfg.DB)
	}
	if !cfg.Mail.Complete() {
		t.Error("mail config should be complete")
	}
	if cfg.Mail.UseSSL {
		t.Error("MAIL_ENCRYPTION=tls should disable implicit SSL")
	}
}

func TestMailIncomplete(t *testing.T) {
	m := MailConfig{Username: "u", Password: "p"}
	if m.Complete() {
		t.Error("missing To should be incomplete")
	}
}

func TestDSN(t *testing.T) {
	d := DBConfig{Host: "h", Port: 5432, User: "us er", Password: "p@ss", Name: "db"}
	got := d.DSN()
	want := "postgres://us%20er:p%40ss@h:5432/db"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regscan.yaml")
	data := []byte(`portal:
  base_url: "https://portal.test/"
  challenge_wait: 30s
browser:
  user_agent: "Mozilla/5.0 test"
  recycle_interval: 1h
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := MergeFile(FromEnv(), path)
	if err != nil {
		t.Fatalf("MergeFile: %v", err)
	}
	if cfg.Portal.BaseURL != "https://portal.test/" {
		t.Errorf("base url = %q", cfg.Portal.BaseURL)
	}
	if cfg.Portal.SiteKey != DefaultSiteKey {
		t.Errorf("site key lost: %q", cfg.Portal.SiteKey)
	}
	if cfg.Portal.ChallengeWait.Std() != 30*time.Second {
		t.Errorf("challenge wait = %v", cfg.Portal.ChallengeWait)
	}
	if cfg.Browser.UserAgent != "Mozilla/5.0 test" || cfg.Browser.RecycleInterval.Std() != time.Hour {
		t.Errorf("browser = %+v", cfg.Browser)
	}
}

func TestDurationForms(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`1m30s`), &d); err != nil || d.Std() != 90*time.Second {
		t.Errorf("string form: %v %v", d, err)
	}
	if err := yaml.Unmarshal([]byte(`5000000000`), &d); err != nil || d.Std() != 5*time.Second {
		t.Errorf("nanos form: %v %v", d, err)
	}
	if err := yaml.Unmarshal([]byte(`fast`), &d); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestMergeFileMissing(t *testing.T) {
	if _, err := MergeFile(FromEnv(), "/nonexistent/regscan.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
