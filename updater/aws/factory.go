package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
)

// pricingAPIRegion hosts the Price List Query API endpoint.
const pricingAPIRegion = "us-east-1"

// SDKClientFactory creates real AWS SDK clients. Implements ClientFactory.
type SDKClientFactory struct{}

func (f *SDKClientFactory) NewEC2Client(region string) (EC2Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for EC2 [region=%s]: %w", region, err)
	}
	return ec2.NewFromConfig(cfg), nil
}

func (f *SDKClientFactory) NewPricingClient() (pricing.GetProductsAPIClient, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(pricingAPIRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Pricing API: %w", err)
	}
	return pricing.NewFromConfig(cfg), nil
}
