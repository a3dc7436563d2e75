package cost

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

const (
	PresetCheapest = "cheapest"
	PresetLarge    = "large"
)

// ControlPlane is the resource requirement of the control plane instance. A spot control
// plane takes the cheapest spot price in the region and ignores the minimums.
type ControlPlane struct {
	Spot        bool    `json:"spot"`
	MinVCPU     float64 `json:"minVcpu,omitempty"`
	MinMemoryGB float64 `json:"minMemoryGb,omitempty"`
}

type NodeRequirement struct {
	MinVCPU     float64 `json:"minVcpu"`
	MinMemoryGB float64 `json:"minMemoryGb"`
}

// DeploymentConfiguration is the shape of a deployment to price.
type DeploymentConfiguration struct {
	Regions        []string        `json:"regions"`
	ControlPlane   ControlPlane    `json:"controlPlane"`
	Node           NodeRequirement `json:"node"`
	NodeCount      int             `json:"nodeCount"`
	StorageSizeGB  float64         `json:"storageSizeGb"`
	StorageMedia   string          `json:"storageMedia,omitempty"`
	OutboundDataGB float64         `json:"outboundDataGb"`
}

// WithDefaults returns a copy with the storage media defaulted to SSD.
func (c DeploymentConfiguration) WithDefaults() DeploymentConfiguration {
	if c.StorageMedia == "" {
		c.StorageMedia = catalog.MediaSSD
	} else {
		c.StorageMedia = strings.ToUpper(c.StorageMedia)
	}
	return c
}

func (c DeploymentConfiguration) Validate() error {
	var errs []error
	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("at least one region is required"))
	}
	seen := map[string]bool{}
	for _, r := range c.Regions {
		switch {
		case r == "":
			errs = append(errs, errors.New("region names must not be empty"))
		case seen[r]:
			errs = append(errs, fmt.Errorf("region %s is listed twice", r))
		}
		seen[r] = true
	}
	if !c.ControlPlane.Spot && c.ControlPlane.MinVCPU <= 0 && c.ControlPlane.MinMemoryGB <= 0 {
		errs = append(errs, errors.New("an on-demand control plane needs a minimum vcpu or memory"))
	}
	if c.ControlPlane.MinVCPU < 0 || c.ControlPlane.MinMemoryGB < 0 {
		errs = append(errs, errors.New("control plane minimums must not be negative"))
	}
	if c.Node.MinVCPU < 0 || c.Node.MinMemoryGB < 0 {
		errs = append(errs, errors.New("node minimums must not be negative"))
	}
	if c.NodeCount < 0 {
		errs = append(errs, fmt.Errorf("node count must not be negative, got %d", c.NodeCount))
	}
	if c.StorageSizeGB < 0 {
		errs = append(errs, fmt.Errorf("storage size must not be negative, got %g", c.StorageSizeGB))
	}
	if c.OutboundDataGB < 0 {
		errs = append(errs, fmt.Errorf("outbound data must not be negative, got %g", c.OutboundDataGB))
	}
	if m := c.StorageMedia; m != "" && m != catalog.MediaSSD && m != catalog.MediaHDD {
		errs = append(errs, fmt.Errorf("storage media must be %s or %s, got %q", catalog.MediaSSD, catalog.MediaHDD, m))
	}
	return errors.Join(errs...)
}

// Cheapest is the smallest useful deployment: a spot control plane and one small node.
func Cheapest(regions []string) DeploymentConfiguration {
	return DeploymentConfiguration{
		Regions:       regions,
		ControlPlane:  ControlPlane{Spot: true},
		Node:          NodeRequirement{MinVCPU: 1, MinMemoryGB: 1},
		NodeCount:     1,
		StorageSizeGB: 8,
		StorageMedia:  catalog.MediaSSD,
	}
}

func Large(regions []string) DeploymentConfiguration {
	return DeploymentConfiguration{
		Regions:        regions,
		ControlPlane:   ControlPlane{MinVCPU: 2, MinMemoryGB: 4},
		Node:           NodeRequirement{MinVCPU: 4, MinMemoryGB: 8},
		NodeCount:      3,
		StorageSizeGB:  50,
		StorageMedia:   catalog.MediaSSD,
		OutboundDataGB: 1000,
	}
}

// Preset returns a named deployment shape for the given regions.
func Preset(name string, regions []string) (DeploymentConfiguration, error) {
	switch strings.ToLower(name) {
	case PresetCheapest:
		return Cheapest(regions), nil
	case PresetLarge:
		return Large(regions), nil
	}
	return DeploymentConfiguration{}, fmt.Errorf("unknown preset %q, expected %s or %s", name, PresetCheapest, PresetLarge)
}

// LoadFile reads a deployment configuration from a YAML or JSON file. Unknown fields are
// rejected.
func LoadFile(path string) (DeploymentConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeploymentConfiguration{}, fmt.Errorf("reading deployment configuration: %w", err)
	}
	var cfg DeploymentConfiguration
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return DeploymentConfiguration{}, fmt.Errorf("parsing deployment configuration %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return DeploymentConfiguration{}, fmt.Errorf("invalid deployment configuration %s: %w", path, err)
	}
	return cfg, nil
}
