package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/cloud-price-index/cost"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type estimateOptions struct {
	file       string
	preset     string
	regions    string
	output     string
	queryURL   string
	timeout    time.Duration
	printQuery bool
}

var estimateOpts estimateOptions

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimates the monthly cost of a deployment in every requested region",
	Long: `Prices a deployment shape against the pricing query service and prints one
cost breakdown per region. The shape comes from --file (YAML or JSON) or from a
named --preset; --regions overrides the regions of either.

Examples:
  cloud-price-index estimate --preset cheapest --regions us-east-1
  cloud-price-index estimate --file deployment.yaml --output json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEstimate(cmd.Context(), estimateOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := estimateCmd.Flags()
	f.StringVarP(&estimateOpts.file, "file", "f", "", "deployment configuration file (YAML or JSON)")
	f.StringVar(&estimateOpts.preset, "preset", cost.PresetCheapest, "deployment preset used when --file is not set: cheapest or large")
	f.StringVar(&estimateOpts.regions, "regions", "", "Comma separated list of AWS regions to estimate for")
	f.StringVarP(&estimateOpts.output, "output", "o", outputTable, "output format: table or json")
	f.StringVar(&estimateOpts.queryURL, "query-url", envOr("PRICING_API_URL", cost.DefaultQueryURL), "pricing query service URL (defaults to $PRICING_API_URL)")
	f.DurationVar(&estimateOpts.timeout, "timeout", time.Minute, "overall timeout of the estimate")
	f.BoolVar(&estimateOpts.printQuery, "print-query", false, "print the batched query instead of sending it")
}

func loadDeployment(opts estimateOptions) (cost.DeploymentConfiguration, error) {
	regions := splitAndTrim(opts.regions)
	if opts.file == "" {
		return cost.Preset(opts.preset, regions)
	}
	cfg, err := cost.LoadFile(opts.file)
	if err != nil {
		return cfg, err
	}
	if len(regions) > 0 {
		cfg.Regions = regions
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func runEstimate(ctx context.Context, opts estimateOptions, out io.Writer) error {
	if opts.output != outputTable && opts.output != outputJSON {
		return fmt.Errorf("output format '%s' is not recognized. Available output formats: table, json", opts.output)
	}
	cfg, err := loadDeployment(opts)
	if err != nil {
		return err
	}

	if opts.printQuery {
		cfg = cfg.WithDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
		doc, err := cost.BuildQuery(cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, doc)
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	log.Debugf("Estimating deployment [regions=%v, query-url=%s]", cfg.Regions, opts.queryURL)
	agg := cost.NewAggregator(cost.NewGraphQLSource(nil, opts.queryURL, log.StandardLogger()), log.StandardLogger())
	est, err := agg.Compute(ctx, cfg)
	if err != nil {
		return err
	}

	if opts.output == outputJSON {
		return writeJSON(out, est)
	}
	return writeTable(out, est)
}

func writeJSON(out io.Writer, est *cost.Estimate) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(est)
}

func writeTable(out io.Writer, est *cost.Estimate) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tITEM\tMONTHLY (USD)")
	for _, r := range est.Regions {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Region, "error", r.Err)
			continue
		}
		for _, item := range r.Breakdown.Items() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Region, item.Label, item.Amount.StringFixed(2))
		}
	}
	return w.Flush()
}

