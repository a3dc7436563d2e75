package updater

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/pixelfederation/cloud-price-index/catalog"
	"github.com/pixelfederation/cloud-price-index/updater/aws"
)

type mockFetcher struct {
	FetchFn func(ctx context.Context, service, region string) ([]byte, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, service, region string) ([]byte, error) {
	return m.FetchFn(ctx, service, region)
}

type mockEC2Client struct {
	DescribeSpotPriceHistoryFn func(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

func (m *mockEC2Client) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	return m.DescribeSpotPriceHistoryFn(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return &ec2.DescribeRegionsOutput{}, nil
}

type mockClientFactory struct {
	NewEC2ClientFn func(region string) (aws.EC2Client, error)
}

func (m *mockClientFactory) NewEC2Client(region string) (aws.EC2Client, error) {
	return m.NewEC2ClientFn(region)
}

func (m *mockClientFactory) NewPricingClient() (pricing.GetProductsAPIClient, error) {
	return nil, nil
}

// recordingStore keeps every upserted record in arrival order.
type recordingStore struct {
	mu            sync.Mutex
	onDemand      []catalog.OnDemandInstance
	spot          []catalog.SpotInstance
	storage       []catalog.StorageOffering
	interRegion   []catalog.InterRegionTransfer
	externalTiers []catalog.ExternalTransferTier
	err           error
}

func (s *recordingStore) UpsertOnDemand(_ context.Context, records []catalog.OnDemandInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.onDemand = append(s.onDemand, records...)
	return nil
}

func (s *recordingStore) UpsertSpot(_ context.Context, records []catalog.SpotInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.spot = append(s.spot, records...)
	return nil
}

func (s *recordingStore) UpsertStorage(_ context.Context, records []catalog.StorageOffering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.storage = append(s.storage, records...)
	return nil
}

func (s *recordingStore) UpsertInterRegion(_ context.Context, records []catalog.InterRegionTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.interRegion = append(s.interRegion, records...)
	return nil
}

func (s *recordingStore) UpsertExternalTiers(_ context.Context, records []catalog.ExternalTransferTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.externalTiers = append(s.externalTiers, records...)
	return nil
}
