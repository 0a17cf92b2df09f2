package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile defaults.
const (
	DefaultURL      = "http://localhost:8080"
	DefaultAudience = "sessiongate"
	DefaultTokenTTL = 5 * time.Minute
)

// Profile is the on-disk client configuration.
type Profile struct {
	URL      string        `yaml:"url"`
	KeyFile  string        `yaml:"key_file"`
	Token    string        `yaml:"token,omitempty"`
	Audience string        `yaml:"audience"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gatectl.yaml"
	}
	return filepath.Join(home, ".gatectl.yaml")
}

// LoadProfile reads a profile file. A missing file yields the defaults.
func LoadProfile(path string) (Profile, error) {
	p := Profile{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Profile{}, fmt.Errorf("read profile: %w", err)
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	p.applyDefaults()
	return p, nil
}

func (p *Profile) applyDefaults() {
	if p.URL == "" {
		p.URL = DefaultURL
	}
	if p.Audience == "" {
		p.Audience = DefaultAudience
	}
	if p.TokenTTL <= 0 {
		p.TokenTTL = DefaultTokenTTL
	}
}

// override replaces every field that is set in o.
func (p *Profile) override(o Profile) {
	if o.URL != "" {
		p.URL = o.URL
	}
	if o.KeyFile != "" {
		p.KeyFile = o.KeyFile
	}
	if o.Token != "" {
		p.Token = o.Token
	}
	if o.Audience != "" {
		p.Audience = o.Audience
	}
	if o.TokenTTL > 0 {
		p.TokenTTL = o.TokenTTL
	}
}
