package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ip-setkeeper/errs"

	"github.com/pelletier/go-toml/v2"
	"github.com/xxxsen/common/logger"
)

const (
	SnapshotBackendFile = "file"
	SnapshotBackendDB   = "db"
)

type BindingConfig struct {
	Set    string `json:"set" validate:"required,ipset_name"`
	Hook   string `json:"hook" validate:"required"`
	Dir    string `json:"dir" validate:"omitempty,oneof=src dst"`
	Target string `json:"target" validate:"required"`
}

type Config struct {
	CommandPrefix    string              `json:"command_prefix" validate:"required"`
	PersistencePath  string              `json:"persistence_path" validate:"required"`
	MaxSets          int                 `json:"max_sets" validate:"gt=0"`
	MaxMembersPerSet int                 `json:"max_members_per_set" validate:"gt=0"`
	CommandTimeout   string              `json:"command_timeout" validate:"duration"`
	ManagedPrefix    string              `json:"managed_prefix"`
	SyncInterval     string              `json:"sync_interval" validate:"duration"`
	DeleteExtraneous bool                `json:"delete_extraneous"`
	JournalRetention string              `json:"journal_retention" validate:"duration"`
	DBFile           string              `json:"db_file" validate:"required_if=SnapshotBackend db"`
	SnapshotBackend  string              `json:"snapshot_backend" validate:"oneof=file db"`
	Listen           string              `json:"listen" validate:"omitempty,listen_addr"`
	LocalNetworkSet  string              `json:"local_network_set" validate:"omitempty,ipset_name"`
	LocalInterfaces  []string            `json:"local_interfaces" validate:"dive,required"`
	SetFiles         map[string][]string `json:"set_files" validate:"dive,keys,ipset_name,endkeys,dive,required"`
	Bindings         []BindingConfig     `json:"bindings" validate:"dive"`
	LogConfig        logger.LogConfig    `json:"log_config"`
}

func Default() *Config {
	c := &Config{
		CommandPrefix:    "ipset",
		PersistencePath:  "/var/lib/ip-setkeeper/ipsets.snapshot",
		MaxSets:          1024,
		MaxMembersPerSet: 65536,
		CommandTimeout:   "10s",
		SyncInterval:     "1m",
		JournalRetention: "168h",
		SnapshotBackend:  SnapshotBackendFile,
	}
	c.LogConfig.Level = "info"
	c.LogConfig.Console = true
	return c
}

// CommandTimeoutDuration is only meaningful on a validated config.
func (c *Config) CommandTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CommandTimeout)
	return d
}

// SyncIntervalDuration returns 0 when periodic sync is disabled.
func (c *Config) SyncIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SyncInterval)
	return d
}

// JournalRetentionDuration returns 0 when journal rows are kept forever.
func (c *Config) JournalRetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.JournalRetention)
	return d
}

// Parse reads a json config, or a toml one when the file ends with ".toml".
func Parse(f string) (*Config, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfig, "read config file failed", err)
	}
	if strings.EqualFold(filepath.Ext(f), ".toml") {
		raw, err = tomlToJSON(raw)
		if err != nil {
			return nil, err
		}
	}
	return ParseJSON(raw)
}

func ParseJSON(raw []byte) (*Config, error) {
	c := Default()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errs.Wrap(errs.CodeConfig, "decode config failed", err)
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// tomlToJSON re-encodes a toml document as json so both formats decode
// through the json tags, the embedded log config included.
func tomlToJSON(raw []byte) ([]byte, error) {
	m := make(map[string]interface{})
	if err := toml.Unmarshal(raw, &m); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errs.Wrap(errs.CodeConfig, fmt.Sprintf("decode toml config failed at line %d column %d", row, col), err)
		}
		return nil, errs.Wrap(errs.CodeConfig, "decode toml config failed", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfig, "convert toml config failed", err)
	}
	return data, nil
}
