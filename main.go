package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

var (
	rawLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cloud-price-index",
	Short: "Keeps an AWS pricing index current and prices deployment shapes against it",
	Long: `cloud-price-index ingests AWS price list catalogs and EC2 spot history into
PostgreSQL, and estimates the monthly cost of a deployment in every requested region.

Examples:
  cloud-price-index serve --regions us-east-1,eu-west-1 --migrate
  cloud-price-index estimate --preset large --regions us-east-1,eu-central-1
  cloud-price-index estimate --file deployment.yaml --output json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(rawLevel, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rawLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level, format string) error {
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format '%s' is not recognized. Available log formats: text, json", format)
	}

	parsedLevel, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warnf("Couldn't parse log level, using default: %s", log.GetLevel())
	} else {
		log.SetLevel(parsedLevel)
		log.Debugf("Set log level to %s", parsedLevel)
	}
	return nil
}

// setupSignals returns a context cancelled on the first SIGINT or SIGTERM.
func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Infof("Received %s, shutting down...", sig)
		cancel()
	}()
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitAndTrim(str string) []string {
	if str == "" {
		return []string{}
	}
	parts := strings.Split(str, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

var acceptedProductDescriptions = []string{
	"Linux/UNIX",
	"SUSE Linux",
	"Windows",
	"Linux/UNIX (Amazon VPC)",
	"SUSE Linux (Amazon VPC)",
	"Windows (Amazon VPC)",
}

func validateProductDesc(pds []string) error {
	for _, desc := range pds {
		if !catalog.Contains(acceptedProductDescriptions, desc) {
			return fmt.Errorf("product description '%s' is not recognized. Available product descriptions: %s", desc, strings.Join(acceptedProductDescriptions, ", "))
		}
	}
	return nil
}

func compileRegexes(regexes []string) ([]*regexp.Regexp, error) {
	compiledRegexes := make([]*regexp.Regexp, len(regexes))
	for i, r := range regexes {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %s: %s", r, err)
		}
		compiledRegexes[i] = re
	}
	return compiledRegexes, nil
}
