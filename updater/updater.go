package updater

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pixelfederation/cloud-price-index/catalog"
	"github.com/pixelfederation/cloud-price-index/updater/aws"
)

const (
	LoopOnDemand = "on_demand"
	LoopSpot     = "spot"
	LoopNetwork  = "network"

	DefaultOnDemandInterval = 6 * time.Hour
	DefaultSpotInterval     = 2 * time.Minute
	DefaultNetworkInterval  = 12 * time.Hour

	DefaultOnDemandConcurrency = 6
	DefaultSpotConcurrency     = 10
	DefaultNetworkConcurrency  = 6

	namespace = "price_index"
)

// Store persists correlated pricing records.
type Store interface {
	UpsertOnDemand(ctx context.Context, records []catalog.OnDemandInstance) error
	UpsertSpot(ctx context.Context, records []catalog.SpotInstance) error
	UpsertStorage(ctx context.Context, records []catalog.StorageOffering) error
	UpsertInterRegion(ctx context.Context, records []catalog.InterRegionTransfer) error
	UpsertExternalTiers(ctx context.Context, records []catalog.ExternalTransferTier) error
}

// Config controls which regions are refreshed and how often.
type Config struct {
	Regions []string

	OnDemandInterval time.Duration
	SpotInterval     time.Duration
	NetworkInterval  time.Duration

	OnDemandConcurrency int
	SpotConcurrency     int
	NetworkConcurrency  int

	InstanceRegexes     []*regexp.Regexp
	ProductDescriptions []string
	SpotInstanceTypes   []string
}

func (c *Config) setDefaults() {
	if c.OnDemandInterval <= 0 {
		c.OnDemandInterval = DefaultOnDemandInterval
	}
	if c.SpotInterval <= 0 {
		c.SpotInterval = DefaultSpotInterval
	}
	if c.NetworkInterval <= 0 {
		c.NetworkInterval = DefaultNetworkInterval
	}
	if c.OnDemandConcurrency <= 0 {
		c.OnDemandConcurrency = DefaultOnDemandConcurrency
	}
	if c.SpotConcurrency <= 0 {
		c.SpotConcurrency = DefaultSpotConcurrency
	}
	if c.NetworkConcurrency <= 0 {
		c.NetworkConcurrency = DefaultNetworkConcurrency
	}
}

// Updater keeps the pricing tables current. It implements prometheus.Collector.
type Updater struct {
	cfg        Config
	fetcher    aws.CatalogFetcher
	clients    aws.ClientFactory
	correlator *aws.Correlator
	store      Store
	logger     log.FieldLogger

	duration      *prometheus.GaugeVec
	refreshes     *prometheus.CounterVec
	refreshErrors *prometheus.GaugeVec
	upserted      *prometheus.CounterVec
	lastRefresh   *prometheus.GaugeVec
}

type regionRefresh func(ctx context.Context, logger log.FieldLogger, region string) error

// New returns an Updater. fetcher serves the AmazonEC2 and AWSDataTransfer catalogs and
// clients serves the EC2 spot price history.
func New(cfg Config, fetcher aws.CatalogFetcher, clients aws.ClientFactory, store Store, logger log.FieldLogger) *Updater {
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg.setDefaults()

	return &Updater{
		cfg:        cfg,
		fetcher:    fetcher,
		clients:    clients,
		correlator: aws.NewCorrelator(logger, cfg.InstanceRegexes),
		store:      store,
		logger:     logger.WithField("component", "updater"),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of the last refresh.",
		}, []string{"loop"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Total refreshes started.",
		}, []string{"loop"}),
		refreshErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_errors",
			Help:      "Regions that failed during the last refresh.",
		}, []string{"loop"}),
		upserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Total pricing records written to the store.",
		}, []string{"loop", "kind"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time the last refresh finished.",
		}, []string{"loop"}),
	}
}

// Describe outputs metric descriptions.
func (u *Updater) Describe(ch chan<- *prometheus.Desc) {
	u.duration.Describe(ch)
	u.refreshes.Describe(ch)
	u.refreshErrors.Describe(ch)
	u.upserted.Describe(ch)
	u.lastRefresh.Describe(ch)
}

// Collect outputs the refresh metrics. Prices themselves live in the store.
func (u *Updater) Collect(ch chan<- prometheus.Metric) {
	u.duration.Collect(ch)
	u.refreshes.Collect(ch)
	u.refreshErrors.Collect(ch)
	u.upserted.Collect(ch)
	u.lastRefresh.Collect(ch)
}

// Run refreshes every loop immediately and then on its own interval until ctx is
// cancelled. A refresh in flight is allowed to finish before Run returns.
func (u *Updater) Run(ctx context.Context) error {
	loops := []struct {
		interval time.Duration
		refresh  func(context.Context) error
	}{
		{u.cfg.OnDemandInterval, u.RefreshOnDemand},
		{u.cfg.SpotInterval, u.RefreshSpot},
		{u.cfg.NetworkInterval, u.RefreshNetwork},
	}

	u.logger.Infof("starting updater [regions=%d]", len(u.cfg.Regions))
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.loop(ctx, l.interval, l.refresh)
		}()
	}
	wg.Wait()
	u.logger.Info("updater stopped")
	return nil
}

func (u *Updater) loop(ctx context.Context, interval time.Duration, refresh func(context.Context) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		// Region failures are logged and counted inside the refresh.
		_ = refresh(context.WithoutCancel(ctx))

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RefreshOnDemand runs one on-demand tick: the AmazonEC2 catalog of every region yields
// instance and block storage prices.
func (u *Updater) RefreshOnDemand(ctx context.Context) error {
	return u.refresh(ctx, LoopOnDemand, u.cfg.OnDemandConcurrency, u.refreshOnDemandRegion)
}

// RefreshSpot runs one spot tick.
func (u *Updater) RefreshSpot(ctx context.Context) error {
	return u.refresh(ctx, LoopSpot, u.cfg.SpotConcurrency, u.refreshSpotRegion)
}

// RefreshNetwork runs one network tick: the AWSDataTransfer catalog of every region
// yields inter-region and internet egress prices.
func (u *Updater) RefreshNetwork(ctx context.Context) error {
	return u.refresh(ctx, LoopNetwork, u.cfg.NetworkConcurrency, u.refreshNetworkRegion)
}

// refresh fans out over the configured regions with at most limit regions in flight and
// returns the joined errors of the regions that failed.
func (u *Updater) refresh(ctx context.Context, loop string, limit int, fn regionRefresh) error {
	start := time.Now()
	logger := u.logger.WithFields(log.Fields{
		"loop":       loop,
		"refresh_id": uuid.NewString(),
	})
	logger.Infof("refresh started [regions=%d, concurrency=%d]", len(u.cfg.Regions), limit)
	u.refreshes.WithLabelValues(loop).Inc()

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for _, region := range u.cfg.Regions {
		g.Go(func() error {
			if err := fn(ctx, logger, region); err != nil {
				logger.WithError(err).Errorf("error while refreshing prices [region=%s]", region)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	u.duration.WithLabelValues(loop).Set(elapsed.Seconds())
	u.refreshErrors.WithLabelValues(loop).Set(float64(len(errs)))
	u.lastRefresh.WithLabelValues(loop).SetToCurrentTime()
	logger.Infof("refresh finished [duration=%s, failed_regions=%d]", elapsed.Round(time.Millisecond), len(errs))

	return errors.Join(errs...)
}

func (u *Updater) refreshOnDemandRegion(ctx context.Context, logger log.FieldLogger, region string) error {
	payload, err := u.fetcher.Fetch(ctx, aws.ServiceEC2, region)
	if err != nil {
		return err
	}
	compute, err := u.correlator.Compute(region, payload)
	if err != nil {
		return err
	}
	if err := u.store.UpsertOnDemand(ctx, compute.Instances); err != nil {
		return err
	}
	u.upserted.WithLabelValues(LoopOnDemand, "on_demand").Add(float64(len(compute.Instances)))
	if err := u.store.UpsertStorage(ctx, compute.Storage); err != nil {
		return err
	}
	u.upserted.WithLabelValues(LoopOnDemand, "storage").Add(float64(len(compute.Storage)))

	logger.Debugf("stored on-demand prices [region=%s, instances=%d, volumes=%d]", region, len(compute.Instances), len(compute.Storage))
	return nil
}

func (u *Updater) refreshSpotRegion(ctx context.Context, logger log.FieldLogger, region string) error {
	client, err := u.clients.NewEC2Client(region)
	if err != nil {
		return fmt.Errorf("failed to create EC2 client [region=%s]: %w", region, err)
	}
	prices, err := aws.GetSpotPrices(ctx, region, client, aws.SpotQuery{
		ProductDescriptions: u.cfg.ProductDescriptions,
		InstanceTypes:       u.cfg.SpotInstanceTypes,
		InstanceRegexes:     u.cfg.InstanceRegexes,
	}, logger)
	if err != nil {
		return err
	}
	if err := u.store.UpsertSpot(ctx, prices); err != nil {
		return err
	}
	u.upserted.WithLabelValues(LoopSpot, "spot").Add(float64(len(prices)))

	logger.Debugf("stored spot prices [region=%s, prices=%d]", region, len(prices))
	return nil
}

func (u *Updater) refreshNetworkRegion(ctx context.Context, logger log.FieldLogger, region string) error {
	payload, err := u.fetcher.Fetch(ctx, aws.ServiceDataTransfer, region)
	if err != nil {
		return err
	}
	network, err := u.correlator.Network(region, payload)
	if err != nil {
		return err
	}
	if err := u.store.UpsertInterRegion(ctx, network.InterRegion); err != nil {
		return err
	}
	u.upserted.WithLabelValues(LoopNetwork, "inter_region_data_transfer").Add(float64(len(network.InterRegion)))
	if err := u.store.UpsertExternalTiers(ctx, network.ExternalTiers); err != nil {
		return err
	}
	u.upserted.WithLabelValues(LoopNetwork, "external_data_transfer").Add(float64(len(network.ExternalTiers)))

	logger.Debugf("stored transfer prices [region=%s, inter_region=%d, external_tiers=%d]", region, len(network.InterRegion), len(network.ExternalTiers))
	return nil
}
