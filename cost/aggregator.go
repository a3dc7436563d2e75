package cost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
	"github.com/pixelfederation/cloud-price-index/cost/query"
)

const (
	// HoursPerMonth is the billing month used for hourly rates.
	HoursPerMonth = 730
	// ControlPlaneStorageGB is the root volume size assumed for the control plane.
	ControlPlaneStorageGB = 8

	AliasControlPlaneOnDemand = "controlPlaneOnDemand"
	AliasNodeOnDemand         = "nodeOnDemand"

	ResourceControlPlane = "control plane instance"
	ResourceNode         = "node instance"
	ResourceStorage      = "block storage"
	ResourceDataTransfer = "external data transfer"

	sortPricePerHour    = "price_per_hour"
	sortPricePerGBMonth = "price_per_gb_month"
	sortStartRange      = "start_range"
)

type OnDemandRow struct {
	Region       string  `json:"region"`
	InstanceType string  `json:"instanceType"`
	Architecture string  `json:"architecture"`
	VCPUCount    float64 `json:"vcpuCount"`
	Memory       float64 `json:"memory"`
	PricePerHour float64 `json:"pricePerHour"`
}

type SpotRow struct {
	Region           string  `json:"region"`
	AvailabilityZone string  `json:"availabilityZone"`
	InstanceType     string  `json:"instanceType"`
	PricePerHour     float64 `json:"pricePerHour"`
}

type BlockStorageRow struct {
	Region          string  `json:"region"`
	VolumeAPIName   string  `json:"volumeApiName"`
	StorageMedia    string  `json:"storageMedia"`
	PricePerGBMonth float64 `json:"pricePerGbMonth"`
}

type ExternalTransferRow struct {
	FromRegionCode string  `json:"fromRegionCode"`
	StartRange     float64 `json:"startRange"`
	EndRange       float64 `json:"endRange"`
	PricePerGB     float64 `json:"pricePerGb"`
}

// Candidates holds the rows returned for each response key of the batched query.
type Candidates struct {
	ControlPlaneOnDemand []OnDemandRow         `json:"controlPlaneOnDemand"`
	NodeOnDemand         []OnDemandRow         `json:"nodeOnDemand"`
	Spot                 []SpotRow             `json:"spot"`
	BlockStorage         []BlockStorageRow     `json:"blockStorage"`
	ExternalDataTransfer []ExternalTransferRow `json:"externalDataTransfer"`
}

// CandidateSource executes a query document against the pricing query service.
type CandidateSource interface {
	Query(ctx context.Context, document string) (*Candidates, error)
}

// RegionEstimate is the outcome for one region: a breakdown, or the reason there is none.
type RegionEstimate struct {
	Region    string
	Breakdown *Breakdown
	Err       error
}

func (r RegionEstimate) MarshalJSON() ([]byte, error) {
	out := struct {
		Region    string     `json:"region"`
		Breakdown *Breakdown `json:"breakdown,omitempty"`
		Error     string     `json:"error,omitempty"`
	}{Region: r.Region, Breakdown: r.Breakdown}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Estimate lists one RegionEstimate per requested region, in configuration order.
type Estimate struct {
	Regions []RegionEstimate `json:"regions"`
}

func (e *Estimate) Region(name string) (RegionEstimate, bool) {
	for _, r := range e.Regions {
		if r.Region == name {
			return r, true
		}
	}
	return RegionEstimate{}, false
}

// Aggregator prices deployment shapes against the pricing query service.
type Aggregator struct {
	source CandidateSource
	logger log.FieldLogger
}

func NewAggregator(source CandidateSource, logger log.FieldLogger) *Aggregator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Aggregator{
		source: source,
		logger: logger.WithField("component", "aggregator"),
	}
}

// Compute queries the candidate rows for cfg in one round trip and evaluates them. It
// fails only for an invalid configuration or a failed query; regions without a priced
// resource are reported inside the Estimate.
func (a *Aggregator) Compute(ctx context.Context, cfg DeploymentConfiguration) (*Estimate, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment configuration: %w", err)
	}
	doc, err := BuildQuery(cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("querying candidates [regions=%v]", cfg.Regions)
	candidates, err := a.source.Query(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("error while querying pricing candidates: %w", err)
	}

	est := Evaluate(cfg, candidates)
	for _, r := range est.Regions {
		if r.Err != nil {
			a.logger.WithError(r.Err).Warnf("no cost figure [region=%s]", r.Region)
		}
	}
	return est, nil
}

// BuildQuery renders the batched query requesting every resource class cfg needs.
func BuildQuery(cfg DeploymentConfiguration) (string, error) {
	cfg = cfg.WithDefaults()
	b := query.New()
	if cfg.ControlPlane.Spot {
		b.Spot("", query.SpotFilter{
			Regions:   cfg.Regions,
			SortBy:    sortPricePerHour,
			SortOrder: query.SortAscending,
		})
	} else {
		b.OnDemand(AliasControlPlaneOnDemand, query.OnDemandFilter{
			Regions:   cfg.Regions,
			MinVCPU:   query.Float(cfg.ControlPlane.MinVCPU),
			MinMemory: query.Float(cfg.ControlPlane.MinMemoryGB),
			SortBy:    sortPricePerHour,
			SortOrder: query.SortAscending,
		})
	}
	b.OnDemand(AliasNodeOnDemand, query.OnDemandFilter{
		Regions:   cfg.Regions,
		MinVCPU:   query.Float(cfg.Node.MinVCPU),
		MinMemory: query.Float(cfg.Node.MinMemoryGB),
		SortBy:    sortPricePerHour,
		SortOrder: query.SortAscending,
	})
	b.BlockStorage("", query.BlockStorageFilter{
		Regions:      cfg.Regions,
		StorageMedia: cfg.StorageMedia,
		SortBy:       sortPricePerGBMonth,
		SortOrder:    query.SortAscending,
	})
	// The service filters transfer rows by a single source region, so every region's
	// tiers are requested and split up locally.
	b.ExternalDataTransfer("", query.ExternalDataTransferFilter{
		SortBy:    sortStartRange,
		SortOrder: query.SortAscending,
	})
	return b.Build()
}

// Evaluate computes the breakdown of every region in cfg from already retrieved rows.
func Evaluate(cfg DeploymentConfiguration, c *Candidates) *Estimate {
	cfg = cfg.WithDefaults()
	if c == nil {
		c = &Candidates{}
	}
	est := &Estimate{Regions: make([]RegionEstimate, 0, len(cfg.Regions))}
	for _, region := range cfg.Regions {
		b, err := evaluateRegion(cfg, c, region)
		est.Regions = append(est.Regions, RegionEstimate{Region: region, Breakdown: b, Err: err})
	}
	return est
}

func evaluateRegion(cfg DeploymentConfiguration, c *Candidates, region string) (*Breakdown, error) {
	missing := func(resource string) error {
		return &catalog.NoMatchingResourceError{Region: region, Resource: resource}
	}

	var controlPlaneRate float64
	if cfg.ControlPlane.Spot {
		row, ok := cheapest(c.Spot, func(r SpotRow) bool { return r.Region == region }, spotPrice)
		if !ok {
			return nil, missing(ResourceControlPlane)
		}
		controlPlaneRate = row.PricePerHour
	} else {
		row, ok := cheapest(c.ControlPlaneOnDemand, meets(region, cfg.ControlPlane.MinVCPU, cfg.ControlPlane.MinMemoryGB), onDemandPrice)
		if !ok {
			return nil, missing(ResourceControlPlane)
		}
		controlPlaneRate = row.PricePerHour
	}

	var nodeRate float64
	if cfg.NodeCount > 0 {
		row, ok := cheapest(c.NodeOnDemand, meets(region, cfg.Node.MinVCPU, cfg.Node.MinMemoryGB), onDemandPrice)
		if !ok {
			return nil, missing(ResourceNode)
		}
		nodeRate = row.PricePerHour
	}

	storage, ok := cheapest(c.BlockStorage, func(r BlockStorageRow) bool {
		return r.Region == region && catalog.NormalizeMedia(r.StorageMedia) == cfg.StorageMedia
	}, func(r BlockStorageRow) float64 { return r.PricePerGBMonth })
	if !ok {
		return nil, missing(ResourceStorage)
	}

	transfer := decimal.Zero
	if cfg.OutboundDataGB > 0 {
		tiers := tiersFor(c.ExternalDataTransfer, region)
		if len(tiers) == 0 {
			return nil, missing(ResourceDataTransfer)
		}
		transfer = TieredCost(tiers, decimal.NewFromFloat(cfg.OutboundDataGB))
	}

	hours := decimal.NewFromInt(HoursPerMonth)
	nodes := decimal.NewFromInt(int64(cfg.NodeCount))
	storageRate := decimal.NewFromFloat(storage.PricePerGBMonth)

	return newBreakdown(
		LineItem{LabelControlPlane, round2(decimal.NewFromFloat(controlPlaneRate).Mul(hours))},
		LineItem{LabelControlPlaneStorage, round2(decimal.NewFromInt(ControlPlaneStorageGB).Mul(storageRate))},
		LineItem{LabelInstances, round2(nodes.Mul(decimal.NewFromFloat(nodeRate)).Mul(hours))},
		LineItem{LabelStorage, round2(decimal.NewFromFloat(cfg.StorageSizeGB).Mul(storageRate).Mul(nodes))},
		LineItem{LabelDataTransfer, round2(transfer)},
	), nil
}

func meets(region string, minVCPU, minMemoryGB float64) func(OnDemandRow) bool {
	return func(r OnDemandRow) bool {
		return r.Region == region && r.VCPUCount >= minVCPU && r.Memory >= minMemoryGB
	}
}

func onDemandPrice(r OnDemandRow) float64 { return r.PricePerHour }

func spotPrice(r SpotRow) float64 { return r.PricePerHour }
