package aws

import "encoding/json"

const (
	MaxResultsPerPage int32 = 100

	ServiceEC2          string = "AmazonEC2"
	ServiceDataTransfer string = "AWSDataTransfer"

	FamilyCompute string = "Compute Instance"
	FamilyStorage string = "Storage"

	TermOnDemand string = "JRTCKXETXF"
	TermPerHour  string = "6YS6EN2CT7"

	locationTypeRegion  = "AWS Region"
	transferInterRegion = "InterRegion Outbound"
	transferInternet    = "AWS Outbound"
	locationExternal    = "External"
	unitGBMonth         = "GB-Mo"
	currencyUSD         = "USD"
)

// Offer is a price list document as served by the bulk offer files. Items stay raw so a
// single malformed product or term can be skipped without failing the catalog.
type Offer struct {
	Products map[string]json.RawMessage `json:"products"`
	Terms    OfferTerms                 `json:"terms"`
}

// OfferTerms maps each SKU to its on-demand terms. The inner term objects are keyed by
// "<sku>.<offer term code>".
type OfferTerms struct {
	OnDemand map[string]json.RawMessage `json:"OnDemand"`
}

type Product struct {
	ProductFamily string
	Attributes    map[string]string
	Sku           string
}

type SKU struct {
	PriceDimensions map[string]Details
	Sku             string
	EffectiveDate   string
	OfferTermCode   string
}

type Details struct {
	Unit         string
	EndRange     string
	Description  string
	RateCode     string
	BeginRange   string
	PricePerUnit map[string]string
}

// priceListItem is one entry of a Price List API GetProducts page.
type priceListItem struct {
	Product     json.RawMessage
	ServiceCode string
	Terms       struct {
		OnDemand map[string]json.RawMessage
	}
}
