package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name" env:"NAME"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Server  struct {
		Port int `yaml:"port" env:"PORT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Tags []string `yaml:"tags" env:"TAGS" envSeparator:","`
}

var errNoName = errors.New("name is required")

func (s *sample) Validate() error {
	if s.Name == "" {
		return errNoName
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_HOST_NAME", "from-env")
	path := writeFile(t, "name: ${SAMPLE_HOST_NAME}\ntimeout: 3s\nserver:\n  port: 80\n")

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "from-env" || cfg.Timeout != 3*time.Second || cfg.Server.Port != 80 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "name: file\nserver:\n  port: 80\n")
	t.Setenv("TEST_SERVER_PORT", "9090")
	t.Setenv("TEST_TAGS", "a,b")

	var cfg sample
	if err := Load(path, &cfg, WithEnvPrefix("TEST_")); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "file" {
		t.Errorf("name = %q, want value from file", cfg.Name)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Tags) != 2 || cfg.Tags[1] != "b" {
		t.Errorf("tags = %v", cfg.Tags)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	var cfg sample
	if err := Load(missing, &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}

	cfg = sample{Name: "default"}
	if err := Load(missing, &cfg, WithOptionalFile()); err != nil {
		t.Fatalf("optional file: %v", err)
	}
	if cfg.Name != "default" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "timeout: 1s\n")
	var cfg sample
	err := Load(path, &cfg)
	if !errors.Is(err, errNoName) {
		t.Fatalf("err = %v, want %v", err, errNoName)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "name: [unterminated\n")
	var cfg sample
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
