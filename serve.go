package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/cloud-price-index/updater"
	"github.com/pixelfederation/cloud-price-index/updater/aws"
	"github.com/pixelfederation/cloud-price-index/updater/store"
)

const (
	catalogSourceBulk = "bulk"
	catalogSourceAPI  = "api"
)

type serveOptions struct {
	addr        string
	metricsPath string

	regions             string
	discoveryRegion     string
	instanceRegexes     string
	productDescriptions string
	spotInstanceTypes   string

	catalogSource   string
	offersURL       string
	fetchTimeout    time.Duration
	maxCatalogBytes int64

	databaseURL      string
	maxDBConns       int
	logQueries       bool
	persistAttempts  int
	persistRetryWait time.Duration

	onDemandInterval    time.Duration
	spotInterval        time.Duration
	networkInterval     time.Duration
	onDemandConcurrency int
	spotConcurrency     int
	networkConcurrency  int

	once    bool
	migrate bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keeps the pricing tables current and exposes refresh metrics",
	Long: `Runs the on-demand, spot and network refresh loops against every configured
region and upserts the correlated records into PostgreSQL. Metrics are served on
--listen-address until SIGINT or SIGTERM; the in-flight refresh finishes first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(setupSignals(), serveOpts)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "listen-address", ":8080", "The address to listen on for HTTP requests.")
	f.StringVar(&serveOpts.metricsPath, "metrics-path", "/metrics", "path to metrics endpoint")

	f.StringVar(&serveOpts.regions, "regions", "", "Comma separated list of AWS regions to get pricing for (defaults to *all*)")
	f.StringVar(&serveOpts.discoveryRegion, "discovery-region", "us-east-1", "Region used to list the enabled regions when --regions is empty")
	f.StringVar(&serveOpts.instanceRegexes, "instance-regexes", "", "Comma separated list of instance types regexes (defaults to *all*)")
	f.StringVar(&serveOpts.productDescriptions, "product-descriptions", "Linux/UNIX", "Comma separated list of product descriptions, used to filter spot instances. Accepted values: Linux/UNIX, SUSE Linux, Windows, Linux/UNIX (Amazon VPC), SUSE Linux (Amazon VPC), Windows (Amazon VPC)")
	f.StringVar(&serveOpts.spotInstanceTypes, "spot-instance-types", "", "Comma separated list of instance types sent with the spot price history request (defaults to *all*)")

	f.StringVar(&serveOpts.catalogSource, "catalog-source", catalogSourceBulk, "Where catalogs are read from: bulk (public offer files) or api (Price List API)")
	f.StringVar(&serveOpts.offersURL, "offers-url", aws.OffersBaseURL, "Base URL of the bulk offer files")
	f.DurationVar(&serveOpts.fetchTimeout, "fetch-timeout", 10*time.Minute, "Timeout of a single catalog download")
	f.Int64Var(&serveOpts.maxCatalogBytes, "max-catalog-bytes", 0, "Reject catalogs larger than this many bytes (0 disables the limit)")

	f.StringVar(&serveOpts.databaseURL, "database-url", envOr("DATABASE_URL", ""), "PostgreSQL connection string (defaults to $DATABASE_URL)")
	f.IntVar(&serveOpts.maxDBConns, "max-db-conns", 10, "Maximum number of open database connections")
	f.BoolVar(&serveOpts.logQueries, "log-queries", false, "Log every upsert statement at debug level")
	f.IntVar(&serveOpts.persistAttempts, "persist-attempts", store.DefaultAttempts, "Attempts per upsert batch before giving up")
	f.DurationVar(&serveOpts.persistRetryWait, "persist-retry-delay", store.DefaultRetryDelay, "Delay between upsert attempts")

	f.DurationVar(&serveOpts.onDemandInterval, "on-demand-interval", updater.DefaultOnDemandInterval, "How often on-demand and storage prices are refreshed")
	f.DurationVar(&serveOpts.spotInterval, "spot-interval", updater.DefaultSpotInterval, "How often spot prices are refreshed")
	f.DurationVar(&serveOpts.networkInterval, "network-interval", updater.DefaultNetworkInterval, "How often data transfer prices are refreshed")
	f.IntVar(&serveOpts.onDemandConcurrency, "on-demand-concurrency", updater.DefaultOnDemandConcurrency, "Regions refreshed concurrently by the on-demand loop")
	f.IntVar(&serveOpts.spotConcurrency, "spot-concurrency", updater.DefaultSpotConcurrency, "Regions refreshed concurrently by the spot loop")
	f.IntVar(&serveOpts.networkConcurrency, "network-concurrency", updater.DefaultNetworkConcurrency, "Regions refreshed concurrently by the network loop")

	f.BoolVar(&serveOpts.once, "once", false, "Run every refresh once and exit")
	f.BoolVar(&serveOpts.migrate, "migrate", false, "Create the pricing tables before starting")
}

func runServe(ctx context.Context, opts serveOptions) error {
	pds := splitAndTrim(opts.productDescriptions)
	if err := validateProductDesc(pds); err != nil {
		return err
	}
	instRegCompiled, err := compileRegexes(splitAndTrim(opts.instanceRegexes))
	if err != nil {
		return err
	}
	if opts.databaseURL == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}

	clients := &aws.SDKClientFactory{}
	regions := splitAndTrim(opts.regions)
	if len(regions) == 0 {
		regions, err = discoverRegions(ctx, clients, opts.discoveryRegion)
		if err != nil {
			return err
		}
	}

	log.Infof("Starting Cloud Price index. [log-level=%s, regions=%v, catalog-source=%s, once=%v]", log.GetLevel(), regions, opts.catalogSource, opts.once)

	fetcher, err := newFetcher(opts, clients)
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, opts.databaseURL, opts.maxDBConns)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, log.StandardLogger(),
		store.WithRetry(opts.persistAttempts, opts.persistRetryWait),
		store.WithQueryLogging(opts.logQueries),
	)
	if opts.migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	u := updater.New(updater.Config{
		Regions:             regions,
		OnDemandInterval:    opts.onDemandInterval,
		SpotInterval:        opts.spotInterval,
		NetworkInterval:     opts.networkInterval,
		OnDemandConcurrency: opts.onDemandConcurrency,
		SpotConcurrency:     opts.spotConcurrency,
		NetworkConcurrency:  opts.networkConcurrency,
		InstanceRegexes:     instRegCompiled,
		ProductDescriptions: pds,
		SpotInstanceTypes:   splitAndTrim(opts.spotInstanceTypes),
	}, fetcher, clients, st, log.StandardLogger())

	if opts.once {
		return errors.Join(u.RefreshOnDemand(ctx), u.RefreshSpot(ctx), u.RefreshNetwork(ctx))
	}

	prometheus.MustRegister(u)

	srv := &http.Server{
		Addr:         opts.addr,
		Handler:      newRouter(log.StandardLogger(), opts.metricsPath, promhttp.Handler(), db),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting metric http endpoint [address=%s, path=%s]", opts.addr, opts.metricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Run(ctx)
	}()

	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("serving http: %w", err)
		}
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("error while shutting down http server")
	}

	log.Info("Waiting for in-flight refreshes to finish")
	<-done
	return err
}

func discoverRegions(ctx context.Context, clients aws.ClientFactory, region string) ([]string, error) {
	client, err := clients.NewEC2Client(region)
	if err != nil {
		return nil, fmt.Errorf("error while initializing aws client to list available regions: %w", err)
	}
	return aws.DescribeRegions(ctx, client)
}

func newFetcher(opts serveOptions, clients aws.ClientFactory) (aws.CatalogFetcher, error) {
	switch opts.catalogSource {
	case catalogSourceBulk:
		return aws.NewBulkFetcher(aws.NewHTTPClient(opts.fetchTimeout), opts.offersURL, opts.maxCatalogBytes, log.StandardLogger()), nil
	case catalogSourceAPI:
		client, err := clients.NewPricingClient()
		if err != nil {
			return nil, err
		}
		return aws.NewAPIFetcher(client, log.StandardLogger()), nil
	default:
		return nil, fmt.Errorf("catalog source '%s' is not recognized. Available catalog sources: bulk, api", opts.catalogSource)
	}
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type requestLogger struct {
	log.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Debug(v...)
}

func newRouter(logger log.FieldLogger, metricsPath string, metrics http.Handler, db pinger) chi.Router {
	router := chi.NewRouter()
	logger = logger.WithField("component", "api")
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}}))
	router.Use(middleware.Recoverer)

	router.Handle(metricsPath, metrics)
	router.Get("/healthz", healthzHandler(db))
	router.Get("/", rootHandler(metricsPath))
	return router
}

func healthzHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func rootHandler(metricsPath string) http.HandlerFunc {
	safePath := html.EscapeString(metricsPath)
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html>
		<head><title>Cloud Price Index</title></head>
		<body>
		<h1>Cloud Price Index</h1>
		<p><a href="` + safePath + `">Metrics</a></p>
		<p><a href="/healthz">Health</a></p>
		</body>
		</html>
	`))
	}
}
