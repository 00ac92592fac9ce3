// Package config loads the daemon's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen         = ":8200"
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 7 * time.Second
	DefaultBrowseTimeout  = 30 * time.Second
	DefaultSearchInterval = 5 * time.Minute
)

type Config struct {
	Listen string `yaml:"listen"`
	// Base of the URLs handed out for local media. Derived from Listen when empty.
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	// Bounds each request to a DLNA server.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Bounds a whole API browse or resolve, which may make several device requests. It must be longer
	// than RequestTimeout so a slow device is detected by its own timeout.
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
	SSDP          SSDP          `yaml:"ssdp"`
	DLNAServers   []DLNAServer  `yaml:"dlna_servers"`
	LocalMedia    LocalMedia    `yaml:"local_media"`
	// Sink protocolInfo of the renderer browse results are filtered for, when asked.
	RendererProtocolInfo []string `yaml:"renderer_protocol_info"`
}

type SSDP struct {
	Enabled *bool `yaml:"enabled"`
	// Interface names. All multicast capable interfaces when empty.
	Interfaces     []string      `yaml:"interfaces"`
	SearchInterval time.Duration `yaml:"search_interval"`
}

func (me SSDP) IsEnabled() bool {
	return me.Enabled == nil || *me.Enabled
}

type DLNAServer struct {
	// Stable key for the server. Defaults to the USN, then the location.
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	USN      string `yaml:"usn"`
}

type LocalMedia struct {
	Name string `yaml:"name"`
	// Source dir id to directory.
	Dirs  map[string]string `yaml:"dirs"`
	Probe *bool             `yaml:"probe"`
}

func (me LocalMedia) ProbeEnabled() bool {
	return me.Probe == nil || *me.Probe
}

func Default() *Config {
	ret := &Config{}
	ret.applyDefaults()
	return ret
}

func (me *Config) applyDefaults() {
	if me.Listen == "" {
		me.Listen = DefaultListen
	}
	if me.LogLevel == "" {
		me.LogLevel = DefaultLogLevel
	}
	if me.RequestTimeout == 0 {
		me.RequestTimeout = DefaultRequestTimeout
	}
	if me.BrowseTimeout == 0 {
		me.BrowseTimeout = DefaultBrowseTimeout
	}
	if me.SSDP.SearchInterval == 0 {
		me.SSDP.SearchInterval = DefaultSearchInterval
	}
	for i := range me.DLNAServers {
		s := &me.DLNAServers[i]
		if s.ID == "" {
			s.ID = s.USN
		}
		if s.ID == "" {
			s.ID = s.Location
		}
	}
}

// Load reads the file at path, applies defaults and validates the result. Unknown fields are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var levels = map[string]log.Level{
	"debug":   log.Debug,
	"info":    log.Info,
	"warning": log.Warning,
	"error":   log.Error,
}

// ParseLevel maps a log_level value to a logger level.
func ParseLevel(s string) g.Option[log.Level] {
	l, ok := levels[strings.ToLower(s)]
	if !ok {
		return g.None[log.Level]()
	}
	return g.Some(l)
}

func (me *Config) Level() log.Level {
	if l := ParseLevel(me.LogLevel); l.Ok {
		return l.Value
	}
	return log.Info
}

// BaseURL is PublicURL, or one made from the listen address.
func (me *Config) BaseURL() string {
	if me.PublicURL != "" {
		return strings.TrimSuffix(me.PublicURL, "/")
	}
	host := me.Listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host
}

func (me *Config) Validate() error {
	var errs []error
	if !ParseLevel(me.LogLevel).Ok {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", me.LogLevel))
	}
	if me.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout: must be positive"))
	}
	if me.BrowseTimeout <= me.RequestTimeout {
		errs = append(errs, fmt.Errorf("browse_timeout: must be longer than request_timeout"))
	}
	if me.SSDP.SearchInterval < 0 {
		errs = append(errs, fmt.Errorf("ssdp.search_interval: must be positive"))
	}
	if me.PublicURL != "" {
		u, err := url.Parse(me.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("public_url: %q is not an http URL", me.PublicURL))
		}
	}
	ids := make(map[string]bool)
	for i, s := range me.DLNAServers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("dlna_servers[%d]: missing name", i))
		}
		if s.Location == "" && s.USN == "" {
			errs = append(errs, fmt.Errorf("dlna_servers[%d]: needs a location or usn", i))
		}
		if s.ID != "" && ids[s.ID] {
			errs = append(errs, fmt.Errorf("dlna_servers[%d]: duplicate id %q", i, s.ID))
		}
		ids[s.ID] = true
	}
	for id, dir := range me.LocalMedia.Dirs {
		if id == "" || strings.ContainsAny(id, "/\\") {
			errs = append(errs, fmt.Errorf("local_media.dirs: invalid source dir id %q", id))
		}
		if dir == "" {
			errs = append(errs, fmt.Errorf("local_media.dirs.%s: missing directory", id))
		}
	}
	for i, pi := range me.RendererProtocolInfo {
		if strings.Count(pi, ":") < 3 {
			errs = append(errs, fmt.Errorf("renderer_protocol_info[%d]: %q is not a protocolInfo", i, pi))
		}
	}
	return errors.Join(errs...)
}
