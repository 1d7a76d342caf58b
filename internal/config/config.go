// Package config loads the host node configuration from YAML or TOML.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ystepanoff/otplat/dataset"
	"github.com/ystepanoff/otplat/radio/sim"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

type Config struct {
	Radio   RadioConfig   `yaml:"radio" toml:"radio"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Node    NodeConfig    `yaml:"node" toml:"node"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Dataset DatasetConfig `yaml:"dataset" toml:"dataset"`
}

// RadioConfig selects the multicast group of the simulated radio.
type RadioConfig struct {
	Group     string `yaml:"group" toml:"group"`
	Port      int    `yaml:"port" toml:"port"`
	Interface string `yaml:"interface" toml:"interface"`
	RSSI      int    `yaml:"rssi" toml:"rssi"`
}

type EngineConfig struct {
	AttachDelay string `yaml:"attach_delay" toml:"attach_delay"`
	MessagePool int    `yaml:"message_pool" toml:"message_pool"`
}

type NodeConfig struct {
	// SettingsFile persists engine settings across restarts; empty keeps
	// them in memory.
	SettingsFile   string `yaml:"settings_file" toml:"settings_file"`
	SocketCapacity int    `yaml:"socket_capacity" toml:"socket_capacity"`
	// AutoStart brings up IPv6 and Thread once the dataset is applied.
	AutoStart bool `yaml:"autostart" toml:"autostart"`
}

type LogConfig struct {
	Level   string `yaml:"level" toml:"level"`
	File    string `yaml:"file" toml:"file"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

// DatasetConfig is the active dataset in text form. Binary fields are
// hex strings; empty or zero fields are left out of the dataset.
type DatasetConfig struct {
	ActiveTimestamp uint64 `yaml:"active_timestamp" toml:"active_timestamp"`
	NetworkName     string `yaml:"network_name" toml:"network_name"`
	Channel         uint16 `yaml:"channel" toml:"channel"`
	PanID           string `yaml:"pan_id" toml:"pan_id"`
	ExtendedPanID   string `yaml:"extended_pan_id" toml:"extended_pan_id"`
	NetworkKey      string `yaml:"network_key" toml:"network_key"`
	MeshLocalPrefix string `yaml:"mesh_local_prefix" toml:"mesh_local_prefix"`
	PSKc            string `yaml:"pskc" toml:"pskc"`
	ChannelMask     string `yaml:"channel_mask" toml:"channel_mask"`
}

func Default() Config {
	return Config{
		Radio: RadioConfig{
			Group: sim.DefaultGroup,
			Port:  sim.DefaultPort,
			RSSI:  sim.DefaultRSSI,
		},
		Engine: EngineConfig{
			AttachDelay: "2s",
			MessagePool: 16,
		},
		Node: NodeConfig{SocketCapacity: 8},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml or .yml, or .toml. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config: parse %s: unknown key %s", path, undecoded[0])
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Radio.Port <= 0 || c.Radio.Port > 65535 {
		return fmt.Errorf("config: radio.port %d out of range", c.Radio.Port)
	}
	if c.Radio.RSSI < -128 || c.Radio.RSSI > 127 {
		return fmt.Errorf("config: radio.rssi %d out of range", c.Radio.RSSI)
	}
	if _, err := c.AttachDelay(); err != nil {
		return err
	}
	if c.Engine.MessagePool <= 0 {
		return fmt.Errorf("config: engine.message_pool must be positive")
	}
	if c.Node.SocketCapacity <= 0 {
		return fmt.Errorf("config: node.socket_capacity must be positive")
	}
	if _, err := c.ToDataset(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AttachDelay() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Engine.AttachDelay))
	if err != nil {
		return 0, fmt.Errorf("config: engine.attach_delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: engine.attach_delay %s is negative", d)
	}
	return d, nil
}

func (c *Config) SimRadio() sim.Config {
	return sim.Config{
		Group:     c.Radio.Group,
		Port:      c.Radio.Port,
		Interface: c.Radio.Interface,
		RSSI:      int8(c.Radio.RSSI),
	}
}

// HasDataset reports whether any dataset field is configured.
func (c *Config) HasDataset() bool {
	return c.Dataset != (DatasetConfig{})
}

// ToDataset converts the dataset section. Only configured fields are set.
func (c *Config) ToDataset() (dataset.OperationalDataset, error) {
	d := c.Dataset
	var ds dataset.OperationalDataset

	if d.ActiveTimestamp != 0 {
		ds.ActiveTimestamp = &dataset.Timestamp{Seconds: d.ActiveTimestamp}
	}
	if d.NetworkName != "" {
		if len(d.NetworkName) > dataset.MaxNetworkNameLength {
			return ds, fmt.Errorf("config: dataset.network_name: %w", dataset.ErrNetworkNameTooLong)
		}
		ds.NetworkName = dataset.Ptr(d.NetworkName)
	}
	if d.Channel != 0 {
		ds.Channel = dataset.Ptr(d.Channel)
	}
	if d.PanID != "" {
		v, err := parseUint(d.PanID, 16)
		if err != nil {
			return ds, fmt.Errorf("config: dataset.pan_id: %w", err)
		}
		ds.PanID = dataset.Ptr(uint16(v))
	}
	if d.ChannelMask != "" {
		v, err := parseUint(d.ChannelMask, 32)
		if err != nil {
			return ds, fmt.Errorf("config: dataset.channel_mask: %w", err)
		}
		ds.ChannelMask = dataset.Ptr(uint32(v))
	}
	if d.ExtendedPanID != "" {
		var b [8]byte
		if err := decodeHex(d.ExtendedPanID, b[:]); err != nil {
			return ds, fmt.Errorf("config: dataset.extended_pan_id: %w", err)
		}
		ds.ExtendedPanID = &b
	}
	if d.NetworkKey != "" {
		var b [16]byte
		if err := decodeHex(d.NetworkKey, b[:]); err != nil {
			return ds, fmt.Errorf("config: dataset.network_key: %w", err)
		}
		ds.NetworkKey = &b
	}
	if d.PSKc != "" {
		var b [16]byte
		if err := decodeHex(d.PSKc, b[:]); err != nil {
			return ds, fmt.Errorf("config: dataset.pskc: %w", err)
		}
		ds.PSKc = &b
	}
	if d.MeshLocalPrefix != "" {
		p, err := parseMeshLocalPrefix(d.MeshLocalPrefix)
		if err != nil {
			return ds, fmt.Errorf("config: dataset.mesh_local_prefix: %w", err)
		}
		ds.MeshLocalPrefix = &p
	}
	return ds, nil
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, bits)
}

func decodeHex(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// parseMeshLocalPrefix takes either a /64 IPv6 prefix or 8 hex bytes.
func parseMeshLocalPrefix(s string) ([8]byte, error) {
	var out [8]byte
	if strings.Contains(s, ":") {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return out, err
		}
		if p.Bits() != 64 || !p.Addr().Is6() {
			return out, fmt.Errorf("%s is not an IPv6 /64", s)
		}
		a := p.Masked().Addr().As16()
		copy(out[:], a[:8])
		return out, nil
	}
	err := decodeHex(s, out[:])
	return out, err
}
