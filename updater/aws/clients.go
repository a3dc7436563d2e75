package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
)

// EC2DescribeRegionsAPI wraps the DescribeRegions call (no SDK paginator interface exists).
type EC2DescribeRegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// EC2Client combines the EC2 API interfaces needed by the updater.
type EC2Client interface {
	ec2.DescribeSpotPriceHistoryAPIClient
	EC2DescribeRegionsAPI
}

// ClientFactory creates AWS service clients, enabling dependency injection for testing.
type ClientFactory interface {
	NewEC2Client(region string) (EC2Client, error)
	NewPricingClient() (pricing.GetProductsAPIClient, error)
}
