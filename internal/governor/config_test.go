package governor

import (
	"bytes"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/quota"
)

func TestProviderConfig_Defaults(t *testing.T) {
	p := ProviderConfig{}.withDefaults()

	if p.ErrorThreshold != DefaultErrorThreshold {
		t.Errorf("ErrorThreshold = %d, want %d", p.ErrorThreshold, DefaultErrorThreshold)
	}
	if p.BaseBackoff != DefaultBaseBackoff || p.MaxBackoff != DefaultMaxBackoff {
		t.Errorf("backoff = %s..%s, want %s..%s", p.BaseBackoff, p.MaxBackoff, DefaultBaseBackoff, DefaultMaxBackoff)
	}
	if p.Jitter != DefaultJitter {
		t.Errorf("Jitter = %v, want %v", p.Jitter, DefaultJitter)
	}

	if got := (ProviderConfig{Jitter: -1}).withDefaults().Jitter; got != 0 {
		t.Errorf("negative jitter should disable jitter, got %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	limits := quota.Limits{RequestsPerMinute: 60}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"valid provider", func(c *Config) { c.Providers["gemini"] = ProviderConfig{Limits: limits} }, false},
		{"zero window", func(c *Config) { c.Window = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero reservation ttl", func(c *Config) { c.ReservationTTL = 0 }, true},
		{"provider without limits", func(c *Config) { c.Providers["gemini"] = ProviderConfig{} }, true},
		{"empty provider name", func(c *Config) { c.Providers[""] = ProviderConfig{Limits: limits} }, true},
		{"negative limit", func(c *Config) {
			c.Providers["gemini"] = ProviderConfig{Limits: quota.Limits{RequestsPerMinute: 10, TokensPerMinute: -1}}
		}, true},
		{"negative threshold", func(c *Config) {
			c.Providers["gemini"] = ProviderConfig{Limits: limits, ErrorThreshold: -2}
		}, true},
		{"max below base", func(c *Config) {
			c.Providers["gemini"] = ProviderConfig{Limits: limits, BaseBackoff: time.Minute, MaxBackoff: time.Second}
		}, true},
		{"jitter too large", func(c *Config) {
			c.Providers["gemini"] = ProviderConfig{Limits: limits, Jitter: 0.5}
		}, true},
		{"jitter at bound", func(c *Config) {
			c.Providers["gemini"] = ProviderConfig{Limits: limits, Jitter: MaxJitter}
		}, false},
		{"invalid default", func(c *Config) { c.Default = ProviderConfig{Jitter: 0.9} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["gemini"] = ProviderConfig{}

	if _, err := New(cfg); !errors.Is(err, ErrConfiguration) {
		t.Errorf("New() error = %v, want ErrConfiguration", err)
	}
}

func TestNew_FillsZeroDurations(t *testing.T) {
	g, err := New(Config{Providers: map[string]ProviderConfig{
		"gemini": {Limits: quota.Limits{RequestsPerMinute: 10}},
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.config.Window != DefaultWindow || g.config.PollInterval != DefaultPollInterval {
		t.Errorf("zero durations not defaulted: %+v", g.config)
	}
}

func TestProviderConfig_ZeroBudgets(t *testing.T) {
	tests := []struct {
		name   string
		limits quota.Limits
		want   []models.ResourceType
	}{
		{"both set", quota.Limits{RequestsPerMinute: 10, TokensPerMinute: 1000}, nil},
		{"none set", quota.Limits{}, nil},
		{"requests only", quota.Limits{RequestsPerMinute: 10}, []models.ResourceType{models.ResourceTokens}},
		{"tokens only", quota.Limits{TokensPerMinute: 1000}, []models.ResourceType{models.ResourceRequests}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProviderConfig{Limits: tt.limits}.zeroBudgets()
			if !slices.Equal(got, tt.want) {
				t.Errorf("zeroBudgets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_WarnsOnZeroBudget(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	cfg := testConfig()
	cfg.Providers["claude"] = ProviderConfig{Limits: quota.Limits{RequestsPerMinute: 10}}
	g, _ := newTestGovernor(t, cfg)

	out := buf.String()
	if !strings.Contains(out, "provider=claude") || !strings.Contains(out, "resource=tokens") {
		t.Errorf("no zero budget warning for claude tokens: %q", out)
	}
	if strings.Contains(out, "provider=gemini") {
		t.Errorf("warned about a fully limited provider: %q", out)
	}

	buf.Reset()
	if err := g.UpdateProvider("gemini", ProviderConfig{Limits: quota.Limits{TokensPerMinute: 500}}); err != nil {
		t.Fatalf("UpdateProvider() error = %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "provider=gemini") || !strings.Contains(out, "resource=requests") {
		t.Errorf("no zero budget warning after update: %q", out)
	}
}
