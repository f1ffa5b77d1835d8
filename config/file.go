package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout.  Pointer fields distinguish "not
// present" from a zero value so a file only overrides what it names.
//
//	host: 127.0.0.1
//	port: 9000
//	connect_timeout: 10s
//	poll_interval: 50ms
//	tunnel:
//	  spec: admin@bastion:2222
//	  agent: true
type fileConfig struct {
	Host           *string        `yaml:"host"`
	Port           *int           `yaml:"port"`
	ConnectTimeout *time.Duration `yaml:"connect_timeout"`
	SendTimeout    *time.Duration `yaml:"send_timeout"`
	PollInterval   *time.Duration `yaml:"poll_interval"`
	PollWait       *time.Duration `yaml:"poll_wait"`
	ChunkSize      *int           `yaml:"chunk_size"`
	Linger         *time.Duration `yaml:"linger"`
	Verbose        *int           `yaml:"verbose"`
	Tunnel         *fileTunnel    `yaml:"tunnel"`
}

type fileTunnel struct {
	Spec          *string `yaml:"spec"`
	Key           *string `yaml:"key"`
	Password      *bool   `yaml:"password"`
	Agent         *bool   `yaml:"agent"`
	StrictHostKey *bool   `yaml:"strict_host_key"`
	KnownHosts    *string `yaml:"known_hosts"`
}

// LoadFile overlays the YAML file at path onto cfg.  Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := decodeFile(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func decodeFile(data []byte, cfg *Config) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	setString(&cfg.Host, fc.Host)
	setInt(&cfg.Port, fc.Port)
	setDuration(&cfg.ConnectTimeout, fc.ConnectTimeout)
	setDuration(&cfg.SendTimeout, fc.SendTimeout)
	setDuration(&cfg.PollInterval, fc.PollInterval)
	setDuration(&cfg.PollWait, fc.PollWait)
	setInt(&cfg.ChunkSize, fc.ChunkSize)
	setDuration(&cfg.Linger, fc.Linger)
	setInt(&cfg.Verbose, fc.Verbose)

	if t := fc.Tunnel; t != nil {
		setString(&cfg.TunnelSpec, t.Spec)
		setString(&cfg.SSHKeyPath, t.Key)
		setBool(&cfg.SSHPassword, t.Password)
		setBool(&cfg.UseSSHAgent, t.Agent)
		setBool(&cfg.StrictHostKey, t.StrictHostKey)
		setString(&cfg.KnownHostsPath, t.KnownHosts)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
