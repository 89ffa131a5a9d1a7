// Package profile loads the tracing profile: timeouts, hop limit, interface
// naming conventions and SSH parameters, from a YAML file.
package profile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtrace/pkg/newtrace/device/sonic"
	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Defaults for fields left out of the profile.
const (
	DefaultSSHPort           = 22
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 5 * time.Second
	DefaultRedisWriteTimeout = 5 * time.Second
)

// Profile is the on-disk tracing profile.
//
//	ssh_port: 22
//	query_timeout: 10s
//	connect_timeout: 30s
//	max_hops: 32
//	aggregate_prefixes: [ae, PortChannel]
//	loop_guard: true
//	known_hosts: ~/.ssh/known_hosts
//	metrics_file: /var/lib/node_exporter/newtrace.prom
//	redis:
//	  dial_timeout: 5s
type Profile struct {
	SSHPort           int           `yaml:"ssh_port,omitempty"`
	QueryTimeout      time.Duration `yaml:"query_timeout,omitempty"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout,omitempty"`
	MaxHops           int           `yaml:"max_hops,omitempty"`
	AggregatePrefixes []string      `yaml:"aggregate_prefixes,omitempty"`
	LoopGuard         *bool         `yaml:"loop_guard,omitempty"`
	KnownHosts        string        `yaml:"known_hosts,omitempty"`
	MetricsFile       string        `yaml:"metrics_file,omitempty"`
	Redis             RedisProfile  `yaml:"redis,omitempty"`
}

// RedisProfile tunes access to the switch databases.
type RedisProfile struct {
	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	// DirectPort reaches Redis without SSH when no username is given.
	// Lab use only.
	DirectPort int `yaml:"direct_port,omitempty"`
}

// Default returns a profile with every default applied.
func Default() *Profile {
	p := &Profile{}
	applyDefaults(p)
	return p
}

// Load reads and validates the profile at path. An empty path returns
// Default().
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}

	applyDefaults(&p)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

func applyDefaults(p *Profile) {
	if p.SSHPort == 0 {
		p.SSHPort = DefaultSSHPort
	}
	if p.QueryTimeout == 0 {
		p.QueryTimeout = trace.DefaultQueryTimeout
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = trace.DefaultConnectTimeout
	}
	if p.MaxHops == 0 {
		p.MaxHops = trace.DefaultMaxHops
	}
	if len(p.AggregatePrefixes) == 0 {
		p.AggregatePrefixes = append([]string(nil), trace.DefaultAggregatePrefixes...)
	}
	if p.LoopGuard == nil {
		on := true
		p.LoopGuard = &on
	}
	if p.Redis.DialTimeout == 0 {
		p.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if p.Redis.ReadTimeout == 0 {
		p.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if p.Redis.WriteTimeout == 0 {
		p.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
}

// Validate checks value ranges. Defaults must already be applied.
func (p *Profile) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(p.SSHPort > 0 && p.SSHPort < 65536, fmt.Sprintf("ssh_port %d out of range", p.SSHPort))
	v.Add(p.QueryTimeout > 0, "query_timeout must be positive")
	v.Add(p.ConnectTimeout > 0, "connect_timeout must be positive")
	v.Add(p.MaxHops > 0, fmt.Sprintf("max_hops %d must be positive", p.MaxHops))
	for _, prefix := range p.AggregatePrefixes {
		v.Add(prefix != "", "aggregate_prefixes contains an empty prefix")
	}
	v.Add(p.Redis.DialTimeout > 0, "redis.dial_timeout must be positive")
	v.Add(p.Redis.DirectPort >= 0 && p.Redis.DirectPort < 65536, fmt.Sprintf("redis.direct_port %d out of range", p.Redis.DirectPort))
	return v.Build()
}

// LoopGuardEnabled reports whether revisiting a device ends the trace.
func (p *Profile) LoopGuardEnabled() bool {
	return p.LoopGuard == nil || *p.LoopGuard
}

// TracerOptions maps the profile onto trace.Options.
func (p *Profile) TracerOptions() trace.Options {
	return trace.Options{
		QueryTimeout:      p.QueryTimeout,
		ConnectTimeout:    p.ConnectTimeout,
		MaxHops:           p.MaxHops,
		AggregatePrefixes: p.AggregatePrefixes,
		DisableLoopGuard:  !p.LoopGuardEnabled(),
	}
}

// SonicOptions maps the profile onto the SONiC dialer options.
func (p *Profile) SonicOptions() sonic.Options {
	return sonic.Options{
		ConnectTimeout: p.ConnectTimeout,
		Redis: sonic.Timeouts{
			Dial:  p.Redis.DialTimeout,
			Read:  p.Redis.ReadTimeout,
			Write: p.Redis.WriteTimeout,
		},
		KnownHostsFile:  util.ExpandHome(p.KnownHosts),
		DirectRedisPort: p.Redis.DirectPort,
	}
}
