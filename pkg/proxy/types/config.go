package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Default values for a ProxyConfig.
const (
	DefaultTargetHost = "localhost"
	DefaultTargetPort = 3000
	DefaultProxyPort  = 8080
)

// ProxyConfig describes one proxy instance: where to listen and which
// upstream to forward to. It is a value type and is never mutated once it
// has been handed to the lifecycle manager; reconfiguration supersedes it.
type ProxyConfig struct {
	// TargetHost is the upstream host name or IP address.
	TargetHost string `json:"targetHost" yaml:"target_host"`

	// TargetPort is the upstream TCP port (1-65535).
	TargetPort int `json:"targetPort" yaml:"target_port"`

	// ProxyPort is the local port the proxy listens on (1-65535).
	// It must differ from TargetPort.
	ProxyPort int `json:"proxyPort" yaml:"proxy_port"`
}

// DefaultProxyConfig returns the configuration used when the caller has not
// saved one yet.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		TargetHost: DefaultTargetHost,
		TargetPort: DefaultTargetPort,
		ProxyPort:  DefaultProxyPort,
	}
}

// TargetURL returns the base URL of the upstream, e.g. "http://localhost:3000".
func (c ProxyConfig) TargetURL() string {
	return "http://" + c.TargetAddr()
}

// TargetAddr returns the upstream address in host:port form.
func (c ProxyConfig) TargetAddr() string {
	return net.JoinHostPort(c.TargetHost, strconv.Itoa(c.TargetPort))
}

// String implements fmt.Stringer.
func (c ProxyConfig) String() string {
	return fmt.Sprintf(":%d -> %s", c.ProxyPort, c.TargetURL())
}

// Validate checks the configuration rules every caller must enforce before
// starting or reconfiguring a proxy: a non-empty host, both ports within
// [1,65535], and distinct ports. All violations are reported together.
func (c ProxyConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.TargetHost) == "" {
		problems = append(problems, "targetHost must not be empty")
	}
	if !validPort(c.TargetPort) {
		problems = append(problems, fmt.Sprintf("targetPort %d is out of range [1,65535]", c.TargetPort))
	}
	if !validPort(c.ProxyPort) {
		problems = append(problems, fmt.Sprintf("proxyPort %d is out of range [1,65535]", c.ProxyPort))
	}
	if c.TargetPort == c.ProxyPort && validPort(c.ProxyPort) {
		problems = append(problems, fmt.Sprintf("proxyPort and targetPort must differ (both %d)", c.ProxyPort))
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// ConfigError reports why a ProxyConfig was rejected.
type ConfigError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid proxy configuration: " + e.Problems[0]
	}
	return "invalid proxy configuration: " + strings.Join(e.Problems, "; ")
}
