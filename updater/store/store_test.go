package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

func newMockStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithRetry(DefaultAttempts, time.Millisecond), WithQueryLogging(true)}, opts...)
	return New(db, nil, opts...), mock
}

func TestUpsertOnDemand(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO on_demand (region, instance_type, vcpu_count, memory, price_per_hour, architecture, storage, updated_at)")).
		WithArgs("us-east-1", "t3.micro", 2.0, 1.0, 0.0104, "x86_64", "EBS only",
			"us-east-1", "t4g.micro", 2.0, 1.0, 0.0084, "arm64", "EBS only").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.UpsertOnDemand(context.Background(), []catalog.OnDemandInstance{
		{Region: "us-east-1", InstanceType: "t3.micro", VCPU: 2, MemoryGB: 1, PricePerHour: 0.0104, Architecture: "x86_64", Storage: "EBS only"},
		{Region: "us-east-1", InstanceType: "t4g.micro", VCPU: 2, MemoryGB: 1, PricePerHour: 0.0084, Architecture: "arm64", Storage: "EBS only"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_DeduplicatesNaturalKeys(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO spot")).
		WithArgs("us-east-1", "us-east-1a", "t3.micro", 0.0040,
			"us-east-1", "us-east-1b", "t3.micro", 0.0035).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.UpsertSpot(context.Background(), []catalog.SpotInstance{
		{Region: "us-east-1", AvailabilityZone: "us-east-1a", InstanceType: "t3.micro", PricePerHour: 0.0031},
		{Region: "us-east-1", AvailabilityZone: "us-east-1b", InstanceType: "t3.micro", PricePerHour: 0.0035},
		{Region: "us-east-1", AvailabilityZone: "us-east-1a", InstanceType: "t3.micro", PricePerHour: 0.0040},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_SameBatchTwiceIssuesSameStatement(t *testing.T) {
	s, mock := newMockStore(t)
	records := []catalog.StorageOffering{{Region: "eu-west-1", VolumeAPIName: "gp3", StorageMedia: "SSD", PricePerGBMonth: 0.088}}

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (region, volume_api_name)\nDO UPDATE SET storage_media = EXCLUDED.storage_media, price_per_gb_month = EXCLUDED.price_per_gb_month, updated_at = NOW()")).
			WithArgs("eu-west-1", "gp3", "SSD", 0.088).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, s.UpsertStorage(context.Background(), records))
	require.NoError(t, s.UpsertStorage(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	require.NoError(t, s.UpsertExternalTiers(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RetriesAfterRollback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inter_region_data_transfer")).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inter_region_data_transfer")).
		WithArgs("us-east-1", "eu-west-1", 0.02).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpsertInterRegion(context.Background(), []catalog.InterRegionTransfer{
		{FromRegion: "us-east-1", ToRegion: "eu-west-1", PricePerGB: 0.02},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_GivesUpAfterMaxAttempts(t *testing.T) {
	s, mock := newMockStore(t)

	for i := 0; i < DefaultAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO external_data_transfer")).
			WillReturnError(errors.New("connection refused"))
		mock.ExpectRollback()
	}

	err := s.UpsertExternalTiers(context.Background(), []catalog.ExternalTransferTier{
		{FromRegion: "us-east-1", TierStart: 0, TierEnd: 10, PricePerGB: 0.09},
	})

	var persistErr *catalog.PersistError
	require.True(t, errors.As(err, &persistErr), "expected PersistError, got %v", err)
	assert.Equal(t, "external_data_transfer", persistErr.Table)
	assert.Equal(t, DefaultAttempts, persistErr.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_CommitFailureIsRetried(t *testing.T) {
	s, mock := newMockStore(t, WithRetry(2, time.Millisecond))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO spot")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO spot")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpsertSpot(context.Background(), []catalog.SpotInstance{
		{Region: "us-east-1", AvailabilityZone: "us-east-1a", InstanceType: "t3.micro", PricePerHour: 0.0031},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	for _, name := range []string{"on_demand", "spot", "storage", "inter_region_data_transfer", "external_data_transfer"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + name + " (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Failure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS on_demand")).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_demand")
	assert.NoError(t, mock.ExpectationsWereMet())
}
