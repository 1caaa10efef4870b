/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/comcast/fishyctl/redfish"
	"gopkg.in/yaml.v3"
)

// Config is the process wide BMC connection and polling configuration
type Config struct {
	BMCScheme          string        `yaml:"scheme"`
	BMCTimeout         time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	User               string        `yaml:"user"`
	Pass               string        `yaml:"password"`
	RetryMax           int           `yaml:"retryMax"`
	RetryWait          time.Duration `yaml:"retryWait"`
	Concurrency        int           `yaml:"concurrency"`

	PollInterval    time.Duration `yaml:"pollInterval"`
	PollTimeout     time.Duration `yaml:"pollTimeout"`
	PollMaxAttempts int           `yaml:"pollMaxAttempts"`
	DownloadDir     string        `yaml:"downloadDir"`
}

var (
	config *Config
	once   sync.Once
)

// Defaults returns the built in configuration
func Defaults() Config {
	return Config{
		BMCScheme:    "https",
		BMCTimeout:   30 * time.Second,
		RetryMax:     2,
		RetryWait:    2 * time.Second,
		Concurrency:  4,
		PollInterval: 3 * time.Second,
		PollTimeout:  15 * time.Minute,
		DownloadDir:  ".",
	}
}

// Load reads a YAML file over the top of base. Keys missing from the file
// keep their base value.
func Load(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("error reading config file %s - %w", path, err)
	}
	c := base
	if err := yaml.Unmarshal(b, &c); err != nil {
		return base, fmt.Errorf("error parsing config file %s - %w", path, err)
	}
	return c, nil
}

// Redfish returns the session configuration for one BMC address. An address
// without a scheme gets BMCScheme.
func (c *Config) Redfish(address string) redfish.Config {
	if address != "" && !strings.Contains(address, "://") {
		address = c.BMCScheme + "://" + address
	}
	return redfish.Config{
		BaseURL:            address,
		Timeout:            c.BMCTimeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
		RetryMax:           c.RetryMax,
		RetryWait:          c.RetryWait,
	}
}

// PollOptions returns the task polling bounds
func (c *Config) PollOptions() redfish.PollOptions {
	return redfish.PollOptions{
		Interval:    c.PollInterval,
		MaxAttempts: c.PollMaxAttempts,
		Timeout:     c.PollTimeout,
	}
}

// NewConfig sets the process wide configuration. Only the first call has an effect.
func NewConfig(c *Config) {
	once.Do(func() {
		if c != nil {
			config = c
		} else {
			d := Defaults()
			config = &d
		}
	})
}

// GetConfig returns the process wide configuration, defaults if NewConfig was never called.
func GetConfig() *Config {
	if config != nil {
		return config
	}

	NewConfig(nil)
	return config
}
