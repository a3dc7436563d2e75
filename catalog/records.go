package catalog

import (
	"fmt"
	"math"
	"strings"
)

// Unbounded is the end-of-range value for the top tier of a graduated rate.
const Unbounded = float64(math.MaxUint32)

const (
	ArchARM64  = "arm64"
	ArchX86_64 = "x86_64"

	MediaSSD = "SSD"
	MediaHDD = "HDD"
)

// OnDemandInstance is the hourly on-demand Linux price of one instance type in a region.
type OnDemandInstance struct {
	Region       string
	InstanceType string
	VCPU         float64
	MemoryGB     float64
	PricePerHour float64
	Architecture string
	Storage      string
}

func (r OnDemandInstance) Key() string {
	return r.Region + "/" + r.InstanceType
}

// SpotInstance is the latest spot price of an instance type in one availability zone.
type SpotInstance struct {
	Region           string
	AvailabilityZone string
	InstanceType     string
	PricePerHour     float64
}

func (r SpotInstance) Key() string {
	return r.Region + "/" + r.AvailabilityZone + "/" + r.InstanceType
}

// StorageOffering is the monthly per-GB price of a block storage volume type.
type StorageOffering struct {
	Region          string
	VolumeAPIName   string
	StorageMedia    string
	PricePerGBMonth float64
}

func (r StorageOffering) Key() string {
	return r.Region + "/" + r.VolumeAPIName
}

// InterRegionTransfer is the per-GB price of traffic leaving FromRegion towards ToRegion.
type InterRegionTransfer struct {
	FromRegion string
	ToRegion   string
	PricePerGB float64
}

func (r InterRegionTransfer) Key() string {
	return r.FromRegion + "->" + r.ToRegion
}

// ExternalTransferTier is one slice of the graduated internet egress rate of a region.
type ExternalTransferTier struct {
	FromRegion string
	TierStart  float64
	TierEnd    float64
	PricePerGB float64
}

func (r ExternalTransferTier) Key() string {
	return fmt.Sprintf("%s/%g-%g", r.FromRegion, r.TierStart, r.TierEnd)
}

// Width returns the number of GB billed at this tier's rate.
func (r ExternalTransferTier) Width() float64 {
	return r.TierEnd - r.TierStart
}

// ArchitectureFor infers the CPU architecture from the catalog's physicalProcessor attribute.
func ArchitectureFor(physicalProcessor string) string {
	p := strings.TrimSpace(physicalProcessor)
	if strings.HasPrefix(p, "AWS Graviton") || strings.HasPrefix(p, "Ampere") {
		return ArchARM64
	}
	return ArchX86_64
}

// NormalizeMedia maps catalog media strings such as "SSD-backed" to SSD or HDD.
func NormalizeMedia(media string) string {
	upper := strings.ToUpper(media)
	switch {
	case strings.Contains(upper, MediaSSD):
		return MediaSSD
	case strings.Contains(upper, MediaHDD):
		return MediaHDD
	}
	return strings.TrimSpace(media)
}
