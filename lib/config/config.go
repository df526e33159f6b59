// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading and validation of the discoping
// configuration file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/syncthing/discoping/lib/protocol"
)

const (
	DefaultKeyFile  = "key.priv"
	DefaultEndpoint = "127.0.0.1:30303"
	DefaultBootnode = "13.93.211.84:30303"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Configuration struct {
	KeyFile       string   `json:"keyFile"`
	ListenIP      string   `json:"listenIP"`
	Endpoint      string   `json:"endpoint"`
	Peers         []string `json:"peers"`
	PingIntervalS int      `json:"pingIntervalS"`
	RateAvg       float64  `json:"rateAvg"`
	RateBurst     int      `json:"rateBurst"`
	RateCacheSize int      `json:"rateCacheSize"`
	MetricsListen string   `json:"metricsListen"`
	StunServer    string   `json:"stunServer"`
}

// New returns the default configuration. Inbound rate limiting is off
// unless RateAvg is set.
func New() Configuration {
	return Configuration{
		KeyFile:       DefaultKeyFile,
		ListenIP:      "0.0.0.0",
		Endpoint:      DefaultEndpoint,
		Peers:         []string{DefaultBootnode},
		PingIntervalS: 30,
		RateAvg:       0,
		RateBurst:     20,
		RateCacheSize: 4096,
	}
}

// Load reads a YAML configuration file. Settings missing from the file keep
// their default values; unknown settings are an error.
func Load(path string) (Configuration, error) {
	cfg := New()
	bs, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func (cfg Configuration) Copy() Configuration {
	newCfg := cfg
	newCfg.Peers = slices.Clone(cfg.Peers)
	return newCfg
}

// Validate checks that all settings are usable.
func (cfg Configuration) Validate() error {
	if cfg.KeyFile == "" {
		return fmt.Errorf("%w: no key file given", ErrInvalidConfig)
	}
	if _, err := cfg.ListenAddress(); err != nil {
		return err
	}
	if _, err := cfg.LocalEndpoint(); err != nil {
		return err
	}
	if _, err := cfg.PeerEndpoints(); err != nil {
		return err
	}
	if cfg.PingIntervalS < 1 {
		return fmt.Errorf("%w: ping interval must be at least one second, not %d", ErrInvalidConfig, cfg.PingIntervalS)
	}
	if cfg.RateAvg < 0 || cfg.RateBurst < 0 || cfg.RateCacheSize < 0 {
		return fmt.Errorf("%w: rate limit settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ListenAddress returns the IPv4 address to bind.
func (cfg Configuration) ListenAddress() (net.IP, error) {
	ip := net.ParseIP(cfg.ListenIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: listen address %q is not an IPv4 address", ErrInvalidConfig, cfg.ListenIP)
	}
	return ip.To4(), nil
}

func (cfg Configuration) LocalEndpoint() (protocol.Endpoint, error) {
	ep, err := protocol.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return protocol.Endpoint{}, fmt.Errorf("%w: endpoint: %w", ErrInvalidConfig, err)
	}
	return ep, nil
}

func (cfg Configuration) PeerEndpoints() ([]protocol.Endpoint, error) {
	peers := make([]protocol.Endpoint, 0, len(cfg.Peers))
	for _, s := range cfg.Peers {
		ep, err := protocol.ParseEndpoint(s)
		if err != nil {
			return nil, fmt.Errorf("%w: peer: %w", ErrInvalidConfig, err)
		}
		peers = append(peers, ep)
	}
	return peers, nil
}

func (cfg Configuration) PingInterval() time.Duration {
	return time.Duration(cfg.PingIntervalS) * time.Second
}
