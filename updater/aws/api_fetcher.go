package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

// APIFetcher assembles catalogs from the Price List Query API instead of the bulk files.
// The result has the same document shape as a bulk offer file.
type APIFetcher struct {
	client pricing.GetProductsAPIClient
	logger log.FieldLogger
}

func NewAPIFetcher(client pricing.GetProductsAPIClient, logger log.FieldLogger) *APIFetcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &APIFetcher{client: client, logger: logger.WithField("component", "api-fetcher")}
}

func (f *APIFetcher) Fetch(ctx context.Context, service, region string) ([]byte, error) {
	offer := Offer{
		Products: map[string]json.RawMessage{},
		Terms:    OfferTerms{OnDemand: map[string]json.RawMessage{}},
	}

	for _, filters := range productQueries(service, region) {
		pag := pricing.NewGetProductsPaginator(f.client, &pricing.GetProductsInput{
			ServiceCode: awssdk.String(service),
			MaxResults:  awssdk.Int32(MaxResultsPerPage),
			Filters:     filters,
		})
		for pag.HasMorePages() {
			page, err := pag.NextPage(ctx)
			if err != nil {
				return nil, classifyAPIError(service, region, err)
			}
			for _, raw := range page.PriceList {
				if err := mergePriceListItem(&offer, raw); err != nil {
					f.logger.WithError(err).Debugf("skipping malformed pricing item [region=%s]", region)
				}
			}
		}
	}

	f.logger.Debugf("assembled %s catalog from price list API [region=%s, products=%d]", service, region, len(offer.Products))
	return json.Marshal(offer)
}

func mergePriceListItem(offer *Offer, raw string) error {
	var item priceListItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return err
	}
	var p Product
	if err := json.Unmarshal(item.Product, &p); err != nil {
		return err
	}
	if p.Sku == "" {
		return errors.New("pricing item has no sku")
	}
	offer.Products[p.Sku] = item.Product
	if len(item.Terms.OnDemand) > 0 {
		terms, err := json.Marshal(item.Terms.OnDemand)
		if err != nil {
			return err
		}
		offer.Terms.OnDemand[p.Sku] = terms
	}
	return nil
}

// productQueries returns the filter sets whose union covers what the Correlator reads.
func productQueries(service, region string) [][]pricingtypes.Filter {
	switch service {
	case ServiceEC2:
		return [][]pricingtypes.Filter{
			{
				termMatch("regionCode", region),
				termMatch("productFamily", FamilyCompute),
				termMatch("capacitystatus", "Used"),
				termMatch("tenancy", "Shared"),
				termMatch("preInstalledSw", "NA"),
				termMatch("operatingSystem", "Linux"),
			},
			{
				termMatch("regionCode", region),
				termMatch("productFamily", FamilyStorage),
			},
		}
	case ServiceDataTransfer:
		return [][]pricingtypes.Filter{
			{termMatch("fromRegionCode", region)},
		}
	}
	return [][]pricingtypes.Filter{{termMatch("regionCode", region)}}
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Field: awssdk.String(field),
		Type:  pricingtypes.FilterTypeTermMatch,
		Value: awssdk.String(value),
	}
}

// classifyAPIError maps SDK failures onto the fetch error taxonomy.
func classifyAPIError(service, region string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &catalog.UpstreamError{Service: service, Region: region, StatusCode: respErr.HTTPStatusCode(), Err: err}
	}
	return &catalog.NetworkError{Service: service, Region: region, Err: fmt.Errorf("price list api: %w", err)}
}
