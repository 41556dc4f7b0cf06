package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestProxyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProxyConfig
		wantErr string
	}{
		{
			name: "defaults are valid",
			cfg:  DefaultProxyConfig(),
		},
		{
			name: "port boundaries are valid",
			cfg:  ProxyConfig{TargetHost: "10.0.0.1", TargetPort: 1, ProxyPort: 65535},
		},
		{
			name:    "empty host",
			cfg:     ProxyConfig{TargetHost: "  ", TargetPort: 3000, ProxyPort: 8080},
			wantErr: "targetHost must not be empty",
		},
		{
			name:    "target port zero",
			cfg:     ProxyConfig{TargetHost: "localhost", TargetPort: 0, ProxyPort: 8080},
			wantErr: "targetPort 0 is out of range",
		},
		{
			name:    "proxy port too large",
			cfg:     ProxyConfig{TargetHost: "localhost", TargetPort: 3000, ProxyPort: 70000},
			wantErr: "proxyPort 70000 is out of range",
		},
		{
			name:    "ports collide",
			cfg:     ProxyConfig{TargetHost: "localhost", TargetPort: 8080, ProxyPort: 8080},
			wantErr: "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error type = %T, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProxyConfig_ValidateReportsAllProblems(t *testing.T) {
	err := ProxyConfig{}.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Validate() error type = %T, want *ConfigError", err)
	}
	if len(cfgErr.Problems) != 3 {
		t.Errorf("got %d problems, want 3: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
}

func TestProxyConfig_TargetURL(t *testing.T) {
	cfg := ProxyConfig{TargetHost: "localhost", TargetPort: 4000, ProxyPort: 9000}
	if got := cfg.TargetURL(); got != "http://localhost:4000" {
		t.Errorf("TargetURL() = %q, want %q", got, "http://localhost:4000")
	}

	v6 := ProxyConfig{TargetHost: "::1", TargetPort: 4000, ProxyPort: 9000}
	if got := v6.TargetURL(); got != "http://[::1]:4000" {
		t.Errorf("TargetURL() = %q, want %q", got, "http://[::1]:4000")
	}
}

func TestStatus_JSONShape(t *testing.T) {
	data, err := json.Marshal(Status{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"isRunning":false,"config":null}` {
		t.Errorf("stopped status JSON = %s", data)
	}

	cfg := DefaultProxyConfig()
	data, err = json.Marshal(SucceededWith("ok", cfg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"success":true,"message":"ok","config":{"targetHost":"localhost","targetPort":3000,"proxyPort":8080}}`
	if string(data) != want {
		t.Errorf("result JSON = %s, want %s", data, want)
	}
}
