package aws

import (
	"cmp"
	"encoding/json"
	"errors"
	"maps"
	"regexp"
	"slices"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

const (
	instancePricePlaces int32 = 5
	storagePricePlaces  int32 = 5
	transferPricePlaces int32 = 3
)

// onDemandDescription extracts the instance type from compute rate descriptions such as
// "$0.0104 per On Demand Linux t3.micro Instance Hour".
var onDemandDescription = regexp.MustCompile(`per On[ -]Demand Linux ([A-Za-z0-9.\-]+) Instance Hour`)

// ComputeCatalog holds the records correlated from one AmazonEC2 regional catalog.
type ComputeCatalog struct {
	Instances []catalog.OnDemandInstance
	Storage   []catalog.StorageOffering
}

// NetworkCatalog holds the records correlated from one AWSDataTransfer catalog.
type NetworkCatalog struct {
	InterRegion   []catalog.InterRegionTransfer
	ExternalTiers []catalog.ExternalTransferTier
}

// Correlator joins the products and terms sections of price list documents into records.
type Correlator struct {
	logger          log.FieldLogger
	instanceRegexes []*regexp.Regexp
}

// NewCorrelator returns a Correlator keeping only instance types matching instanceRegexes.
// An empty list keeps every type.
func NewCorrelator(logger log.FieldLogger, instanceRegexes []*regexp.Regexp) *Correlator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Correlator{
		logger:          logger.WithField("component", "correlator"),
		instanceRegexes: instanceRegexes,
	}
}

type document struct {
	service  string
	region   string
	skus     []string
	products map[string]Product
	terms    map[string]json.RawMessage
}

func (c *Correlator) decode(service, region string, payload []byte) (*document, error) {
	var offer Offer
	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, &catalog.ParseError{Service: service, Region: region, Err: err}
	}
	if offer.Products == nil {
		return nil, &catalog.ParseError{Service: service, Region: region, Err: errors.New("document has no products section")}
	}

	doc := &document{
		service:  service,
		region:   region,
		products: make(map[string]Product, len(offer.Products)),
		terms:    offer.Terms.OnDemand,
	}
	for sku, raw := range offer.Products {
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.WithError(err).Debugf("skipping malformed product [region=%s, sku=%s]", region, sku)
			continue
		}
		doc.products[sku] = p
		doc.skus = append(doc.skus, sku)
	}
	sort.Strings(doc.skus)
	return doc, nil
}

// termsByKey decodes the on-demand terms of one SKU, keyed by "<sku>.<offer term code>".
func (c *Correlator) termsByKey(doc *document, sku string) map[string]json.RawMessage {
	raw, ok := doc.terms[sku]
	if !ok {
		return nil
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		c.logger.WithError(err).Debugf("skipping malformed terms [region=%s, sku=%s]", doc.region, sku)
		return nil
	}
	return byKey
}

// onDemandTerms decodes the on-demand rate terms of one SKU in term key order.
func (c *Correlator) onDemandTerms(doc *document, sku string) []SKU {
	byKey := c.termsByKey(doc, sku)
	if byKey == nil {
		return nil
	}
	terms := make([]SKU, 0, len(byKey))
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		var term SKU
		if err := json.Unmarshal(byKey[key], &term); err != nil {
			c.logger.WithError(err).Debugf("skipping malformed term [region=%s, term=%s]", doc.region, key)
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// number coerces a catalog numeric, falling back to zero.
func (c *Correlator) number(region, field, raw string) float64 {
	v, err := parseNumber(raw)
	if err != nil {
		c.logger.WithError(err).Debugf("defaulting %s to zero [region=%s]", field, region)
		return 0
	}
	return v
}

// Compute correlates an AmazonEC2 regional catalog into on-demand instance and block
// storage records.
func (c *Correlator) Compute(region string, payload []byte) (*ComputeCatalog, error) {
	doc, err := c.decode(ServiceEC2, region, payload)
	if err != nil {
		return nil, err
	}

	rates := c.describedRates(doc)
	out := &ComputeCatalog{}
	seenInstances := map[string]bool{}
	seenVolumes := map[string]bool{}

	for _, sku := range doc.skus {
		p := doc.products[sku]
		if !inRegion(p) {
			continue
		}
		switch p.ProductFamily {
		case FamilyCompute:
			inst, ok := c.instanceFromProduct(region, p)
			if !ok || seenInstances[inst.Key()] {
				continue
			}
			inst.PricePerHour, _ = c.resolvePrice(doc, sku, p, rates)
			seenInstances[inst.Key()] = true
			out.Instances = append(out.Instances, inst)
		case FamilyStorage:
			offering, ok := c.storageFromProduct(region, p)
			if !ok || seenVolumes[offering.Key()] {
				continue
			}
			offering.PricePerGBMonth, _ = c.resolvePrice(doc, sku, p, rates)
			seenVolumes[offering.Key()] = true
			out.Storage = append(out.Storage, offering)
		}
	}

	c.logger.Debugf("correlated compute catalog [region=%s, instances=%d, volumes=%d]", region, len(out.Instances), len(out.Storage))
	return out, nil
}

// resolvePrice returns the on-demand rate of a product. Storage terms are keyed by the
// product's own SKU; compute rates are only reachable through their descriptions.
func (c *Correlator) resolvePrice(doc *document, sku string, p Product, described map[string]float64) (float64, bool) {
	switch p.ProductFamily {
	case FamilyStorage:
		rate, ok := c.firstRate(doc, sku, unitGBMonth)
		return roundTo(rate, storagePricePlaces), ok
	case FamilyCompute:
		rate, ok := described[p.Attributes["instanceType"]]
		return rate, ok
	}
	return 0, false
}

// describedRates indexes hourly Linux on-demand rates by the instance type named in their
// description. A published non-zero rate is never replaced.
func (c *Correlator) describedRates(doc *document) map[string]float64 {
	rates := map[string]float64{}
	for _, sku := range slices.Sorted(maps.Keys(doc.terms)) {
		if p, ok := doc.products[sku]; ok && (p.ProductFamily != FamilyCompute || !inRegion(p)) {
			continue
		}
		for _, term := range c.onDemandTerms(doc, sku) {
			for _, key := range slices.Sorted(maps.Keys(term.PriceDimensions)) {
				dim := term.PriceDimensions[key]
				m := onDemandDescription.FindStringSubmatch(dim.Description)
				if m == nil {
					continue
				}
				raw, ok := dim.PricePerUnit[currencyUSD]
				if !ok {
					continue
				}
				if current, ok := rates[m[1]]; ok && current != 0 {
					continue
				}
				rates[m[1]] = roundTo(c.number(doc.region, "pricePerUnit", raw), instancePricePlaces)
			}
		}
	}
	return rates
}

// directRate reads the rate at "<sku>.JRTCKXETXF.6YS6EN2CT7", the standard on-demand
// term and rate codes.
func (c *Correlator) directRate(doc *document, sku, unit string) (float64, bool) {
	termKey := sku + "." + TermOnDemand
	raw, ok := c.termsByKey(doc, sku)[termKey]
	if !ok {
		return 0, false
	}
	var term SKU
	if err := json.Unmarshal(raw, &term); err != nil {
		return 0, false
	}
	dim, ok := term.PriceDimensions[termKey+"."+TermPerHour]
	if !ok || (unit != "" && dim.Unit != unit) {
		return 0, false
	}
	price, ok := dim.PricePerUnit[currencyUSD]
	if !ok {
		return 0, false
	}
	return c.number(doc.region, "pricePerUnit", price), true
}

// firstRate returns the rate at the standard on-demand codes of a SKU, or else the first
// USD rate in key order, optionally restricted to one unit.
func (c *Correlator) firstRate(doc *document, sku, unit string) (float64, bool) {
	if rate, ok := c.directRate(doc, sku, unit); ok {
		return rate, true
	}
	for _, term := range c.onDemandTerms(doc, sku) {
		for _, key := range slices.Sorted(maps.Keys(term.PriceDimensions)) {
			dim := term.PriceDimensions[key]
			if unit != "" && dim.Unit != unit {
				continue
			}
			raw, ok := dim.PricePerUnit[currencyUSD]
			if !ok {
				continue
			}
			return c.number(doc.region, "pricePerUnit", raw), true
		}
	}
	return 0, false
}

func (c *Correlator) instanceFromProduct(region string, p Product) (catalog.OnDemandInstance, bool) {
	attrs := p.Attributes
	instanceType := attrs["instanceType"]
	if instanceType == "" || attrs["vcpu"] == "" || attrs["memory"] == "" {
		return catalog.OnDemandInstance{}, false
	}
	if !catalog.IsMatchAny(c.instanceRegexes, instanceType) {
		c.logger.Debugf("skipping instance type [region=%s, type=%s]", region, instanceType)
		return catalog.OnDemandInstance{}, false
	}
	return catalog.OnDemandInstance{
		Region:       region,
		InstanceType: instanceType,
		VCPU:         c.number(region, "vcpu", attrs["vcpu"]),
		MemoryGB:     c.number(region, "memory", attrs["memory"]),
		Architecture: catalog.ArchitectureFor(attrs["physicalProcessor"]),
		Storage:      attrs["storage"],
	}, true
}

func (c *Correlator) storageFromProduct(region string, p Product) (catalog.StorageOffering, bool) {
	volume := p.Attributes["volumeApiName"]
	media := p.Attributes["storageMedia"]
	if volume == "" || media == "" {
		return catalog.StorageOffering{}, false
	}
	return catalog.StorageOffering{
		Region:        region,
		VolumeAPIName: volume,
		StorageMedia:  catalog.NormalizeMedia(media),
	}, true
}

// Network correlates an AWSDataTransfer catalog into inter-region rates and the graduated
// internet egress tiers of each source region.
func (c *Correlator) Network(region string, payload []byte) (*NetworkCatalog, error) {
	doc, err := c.decode(ServiceDataTransfer, region, payload)
	if err != nil {
		return nil, err
	}

	out := &NetworkCatalog{}
	seen := map[string]bool{}

	for _, sku := range doc.skus {
		attrs := doc.products[sku].Attributes
		from := attrs["fromRegionCode"]
		if attrs["fromLocationType"] != locationTypeRegion || from == "" {
			continue
		}

		switch attrs["transferType"] {
		case transferInterRegion:
			to := attrs["toRegionCode"]
			if attrs["toLocationType"] != locationTypeRegion || to == "" {
				continue
			}
			rate, ok := c.firstRate(doc, sku, "")
			if !ok {
				continue
			}
			rec := catalog.InterRegionTransfer{FromRegion: from, ToRegion: to, PricePerGB: roundTo(rate, transferPricePlaces)}
			if seen[rec.Key()] {
				continue
			}
			seen[rec.Key()] = true
			out.InterRegion = append(out.InterRegion, rec)
		case transferInternet:
			if attrs["toLocation"] != locationExternal {
				continue
			}
			for _, tier := range c.tiers(doc, sku, from) {
				if seen[tier.Key()] {
					continue
				}
				seen[tier.Key()] = true
				out.ExternalTiers = append(out.ExternalTiers, tier)
			}
		}
	}

	SortTiers(out.ExternalTiers)
	c.logger.Debugf("correlated network catalog [region=%s, inter_region=%d, external_tiers=%d]", region, len(out.InterRegion), len(out.ExternalTiers))
	return out, nil
}

func (c *Correlator) tiers(doc *document, sku, from string) []catalog.ExternalTransferTier {
	var tiers []catalog.ExternalTransferTier
	for _, term := range c.onDemandTerms(doc, sku) {
		for _, key := range slices.Sorted(maps.Keys(term.PriceDimensions)) {
			dim := term.PriceDimensions[key]
			raw, ok := dim.PricePerUnit[currencyUSD]
			if !ok {
				continue
			}
			tier := catalog.ExternalTransferTier{
				FromRegion: from,
				TierStart:  c.number(doc.region, "beginRange", dim.BeginRange),
				TierEnd:    c.number(doc.region, "endRange", dim.EndRange),
				PricePerGB: roundTo(c.number(doc.region, "pricePerUnit", raw), transferPricePlaces),
			}
			if tier.TierEnd <= tier.TierStart {
				c.logger.Debugf("skipping empty transfer tier [region=%s, sku=%s, begin=%q, end=%q]", doc.region, sku, dim.BeginRange, dim.EndRange)
				continue
			}
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

// SortTiers orders tiers by source region, then ascending start and end of range.
func SortTiers(tiers []catalog.ExternalTransferTier) {
	slices.SortStableFunc(tiers, func(a, b catalog.ExternalTransferTier) int {
		return cmp.Or(
			cmp.Compare(a.FromRegion, b.FromRegion),
			cmp.Compare(a.TierStart, b.TierStart),
			cmp.Compare(a.TierEnd, b.TierEnd),
		)
	})
}

// inRegion excludes Local Zone and Wavelength products that share a regional catalog.
func inRegion(p Product) bool {
	lt := p.Attributes["locationType"]
	return lt == "" || lt == locationTypeRegion
}
