package aws

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

const serviceSpot = "EC2Spot"

// SpotQuery narrows a spot price history lookup.
type SpotQuery struct {
	ProductDescriptions []string
	InstanceTypes       []string
	InstanceRegexes     []*regexp.Regexp
}

// GetSpotPrices returns the current spot price per availability zone and instance type.
// When the history holds several prices for the same pair, the newest one wins.
func GetSpotPrices(ctx context.Context, region string, client ec2.DescribeSpotPriceHistoryAPIClient, q SpotQuery, logger log.FieldLogger) ([]catalog.SpotInstance, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	input := &ec2.DescribeSpotPriceHistoryInput{
		StartTime:           awssdk.Time(time.Now()),
		MaxResults:          awssdk.Int32(MaxResultsPerPage),
		ProductDescriptions: q.ProductDescriptions,
	}
	for _, t := range q.InstanceTypes {
		input.InstanceTypes = append(input.InstanceTypes, ec2types.InstanceType(t))
	}

	type observed struct {
		record catalog.SpotInstance
		at     time.Time
	}
	latest := map[string]observed{}

	pag := ec2.NewDescribeSpotPriceHistoryPaginator(client, input)
	for pag.HasMorePages() {
		history, err := pag.NextPage(ctx)
		if err != nil {
			return nil, classifyAPIError(serviceSpot, region, err)
		}
		for _, price := range history.SpotPriceHistory {
			instanceType := string(price.InstanceType)
			if !catalog.IsMatchAny(q.InstanceRegexes, instanceType) {
				logger.Debugf("Skipping instance type: %s", instanceType)
				continue
			}
			az := awssdk.ToString(price.AvailabilityZone)
			value, err := parseNumber(awssdk.ToString(price.SpotPrice))
			if err != nil || az == "" {
				logger.WithError(err).Warnf("error while parsing spot price from API response [region=%s, az=%s, type=%s]", region, az, instanceType)
				continue
			}

			rec := catalog.SpotInstance{
				Region:           region,
				AvailabilityZone: az,
				InstanceType:     instanceType,
				PricePerHour:     value,
			}
			at := awssdk.ToTime(price.Timestamp)
			if prev, ok := latest[rec.Key()]; ok && !at.After(prev.at) {
				continue
			}
			latest[rec.Key()] = observed{record: rec, at: at}
		}
	}

	out := make([]catalog.SpotInstance, 0, len(latest))
	for _, o := range latest {
		out = append(out, o.record)
	}
	slices.SortFunc(out, func(a, b catalog.SpotInstance) int {
		return cmp.Or(cmp.Compare(a.AvailabilityZone, b.AvailabilityZone), cmp.Compare(a.InstanceType, b.InstanceType))
	})
	return out, nil
}
