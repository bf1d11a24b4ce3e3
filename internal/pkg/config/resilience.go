// Package config loads the per-service resilience thresholds consumed at
// process startup. Services are declared in a YAML file; anything omitted
// falls back to the capability's tuned default. Changing thresholds requires
// a restart, there is no runtime mutation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"grantpath/internal/resilience"
)

// ServiceConfig is one service entry of the resilience config file. All
// numeric fields are optional; zero means "use the capability default".
type ServiceConfig struct {
	Name                   string `yaml:"name"`
	Capability             string `yaml:"capability"`
	FailureThreshold       int    `yaml:"failure_threshold"`
	CoolDownSeconds        int    `yaml:"cool_down_seconds"`
	CoolDownCeilingSeconds int    `yaml:"cool_down_ceiling_seconds"`
	SuccessThreshold       int    `yaml:"success_threshold"`
	HalfOpenMaxCalls       int    `yaml:"half_open_max_calls"`
	TimeoutMS              int    `yaml:"timeout_ms"`
	MaxRetries             *int   `yaml:"max_retries"`
	BackoffBaseMS          int    `yaml:"backoff_base_ms"`
	BackoffCeilingMS       int    `yaml:"backoff_ceiling_ms"`
}

// File is the top-level shape of the resilience config file.
type File struct {
	Services []ServiceConfig `yaml:"services"`
}

// DefaultDescriptors returns one descriptor per known capability, named after
// the production dependency it guards. Used when no config file is given.
func DefaultDescriptors() []resilience.Descriptor {
	return []resilience.Descriptor{
		resilience.DefaultDescriptor("grant-index", resilience.CapabilityVectorSearch),
		resilience.DefaultDescriptor("draft-writer", resilience.CapabilityCompletion),
		resilience.DefaultDescriptor("notify-webhook", resilience.CapabilityNotification),
		resilience.DefaultDescriptor("payment-provider", resilience.CapabilityPaymentWebhook),
	}
}

// LoadDescriptors reads the resilience config file and resolves every entry
// against its capability defaults. An empty path yields the defaults.
func LoadDescriptors(path string) ([]resilience.Descriptor, error) {
	if path == "" {
		return DefaultDescriptors(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resilience config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("resilience config: parse %s: %w", path, err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("resilience config: %s declares no services", path)
	}

	descs := make([]resilience.Descriptor, 0, len(file.Services))
	for _, sc := range file.Services {
		d, err := sc.descriptor()
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// descriptor resolves one entry: defaults first, explicit values on top,
// then a final validation pass.
func (sc ServiceConfig) descriptor() (resilience.Descriptor, error) {
	capability := resilience.Capability(sc.Capability)
	if !capability.Valid() {
		return resilience.Descriptor{}, fmt.Errorf("resilience config: service %q: unknown capability %q", sc.Name, sc.Capability)
	}

	d := resilience.DefaultDescriptor(sc.Name, capability)
	if sc.FailureThreshold > 0 {
		d.FailureThreshold = sc.FailureThreshold
	}
	if sc.CoolDownSeconds > 0 {
		d.CoolDown = time.Duration(sc.CoolDownSeconds) * time.Second
	}
	if sc.CoolDownCeilingSeconds > 0 {
		d.CoolDownCeiling = time.Duration(sc.CoolDownCeilingSeconds) * time.Second
	}
	if d.CoolDownCeiling < d.CoolDown {
		d.CoolDownCeiling = d.CoolDown
	}
	if sc.SuccessThreshold > 0 {
		d.SuccessThreshold = sc.SuccessThreshold
	}
	if sc.HalfOpenMaxCalls > 0 {
		d.HalfOpenMaxCalls = sc.HalfOpenMaxCalls
	}
	if sc.TimeoutMS > 0 {
		d.Timeout = time.Duration(sc.TimeoutMS) * time.Millisecond
	}
	if sc.MaxRetries != nil && *sc.MaxRetries >= 0 {
		d.MaxRetries = *sc.MaxRetries
	}
	if sc.BackoffBaseMS > 0 {
		d.BackoffBase = time.Duration(sc.BackoffBaseMS) * time.Millisecond
	}
	if sc.BackoffCeilingMS > 0 {
		d.BackoffCeiling = time.Duration(sc.BackoffCeilingMS) * time.Millisecond
	}
	if d.BackoffCeiling < d.BackoffBase {
		d.BackoffCeiling = d.BackoffBase
	}

	if err := d.Validate(); err != nil {
		return resilience.Descriptor{}, err
	}
	return d, nil
}
