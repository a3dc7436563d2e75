package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "deployment.yaml", `
regions: [us-east-1, eu-central-1]
controlPlane:
  minVcpu: 2
  minMemoryGb: 4
node:
  minVcpu: 4
  minMemoryGb: 8
nodeCount: 3
storageSizeGb: 50
storageMedia: hdd
outboundDataGb: 1000
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DeploymentConfiguration{
		Regions:        []string{"us-east-1", "eu-central-1"},
		ControlPlane:   ControlPlane{MinVCPU: 2, MinMemoryGB: 4},
		Node:           NodeRequirement{MinVCPU: 4, MinMemoryGB: 8},
		NodeCount:      3,
		StorageSizeGB:  50,
		StorageMedia:   "HDD",
		OutboundDataGB: 1000,
	}, cfg)
}

func TestLoadFile_JSONDefaultsMedia(t *testing.T) {
	path := writeFile(t, "deployment.json", `{"regions": ["us-east-1"], "controlPlane": {"spot": true}, "node": {"minVcpu": 1, "minMemoryGb": 1}, "nodeCount": 1, "storageSizeGb": 8, "outboundDataGb": 0}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Cheapest([]string{"us-east-1"}), cfg)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := map[string]struct {
		content string
		want    string
	}{
		"unknown field": {
			content: "regions: [us-east-1]\ncontrolPlane: {spot: true}\nnodes: 3\n",
			want:    "parsing deployment configuration",
		},
		"invalid": {
			content: "regions: []\ncontrolPlane: {spot: true}\n",
			want:    "at least one region is required",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "deployment.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading deployment configuration")
}

func TestValidate(t *testing.T) {
	valid := Large([]string{"us-east-1"})

	tests := map[string]struct {
		mutate func(c *DeploymentConfiguration)
		want   string
	}{
		"no regions":              {func(c *DeploymentConfiguration) { c.Regions = nil }, "at least one region"},
		"empty region":            {func(c *DeploymentConfiguration) { c.Regions = []string{""} }, "must not be empty"},
		"duplicate region":        {func(c *DeploymentConfiguration) { c.Regions = []string{"a", "a"} }, "listed twice"},
		"unconstrained on-demand": {func(c *DeploymentConfiguration) { c.ControlPlane = ControlPlane{} }, "needs a minimum"},
		"negative node count":     {func(c *DeploymentConfiguration) { c.NodeCount = -1 }, "node count"},
		"negative storage":        {func(c *DeploymentConfiguration) { c.StorageSizeGB = -5 }, "storage size"},
		"negative outbound":       {func(c *DeploymentConfiguration) { c.OutboundDataGB = -1 }, "outbound data"},
		"negative node minimum":   {func(c *DeploymentConfiguration) { c.Node.MinMemoryGB = -1 }, "node minimums"},
		"unknown media":           {func(c *DeploymentConfiguration) { c.StorageMedia = "NVME" }, "storage media"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, valid.Validate())
	assert.NoError(t, Cheapest([]string{"us-east-1"}).Validate())
}

func TestPreset(t *testing.T) {
	cfg, err := Preset("LARGE", []string{"eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, Large([]string{"eu-west-1"}), cfg)

	_, err = Preset("huge", nil)
	assert.ErrorContains(t, err, `unknown preset "huge"`)
}
