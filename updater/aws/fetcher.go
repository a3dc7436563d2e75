package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

// OffersBaseURL serves the public bulk price list files.
const OffersBaseURL = "https://pricing.us-east-1.amazonaws.com/offers/v1.0/aws"

// CatalogFetcher retrieves the raw price list document of a service in a region.
type CatalogFetcher interface {
	Fetch(ctx context.Context, service, region string) ([]byte, error)
}

// NewHTTPClient returns a client meant to be shared by every catalog download.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

// BulkFetcher downloads catalogs from the public bulk offer files.
type BulkFetcher struct {
	client   *http.Client
	baseURL  string
	maxBytes int64
	logger   log.FieldLogger
}

// NewBulkFetcher returns a BulkFetcher. An empty baseURL uses OffersBaseURL and a
// non-positive maxBytes disables the size limit.
func NewBulkFetcher(client *http.Client, baseURL string, maxBytes int64, logger log.FieldLogger) *BulkFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = OffersBaseURL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BulkFetcher{
		client:   client,
		baseURL:  baseURL,
		maxBytes: maxBytes,
		logger:   logger.WithField("component", "fetcher"),
	}
}

// CatalogURL returns the offer file location. An empty region selects the global document.
func (f *BulkFetcher) CatalogURL(service, region string) string {
	if region == "" {
		return fmt.Sprintf("%s/%s/current/index.json", f.baseURL, service)
	}
	return fmt.Sprintf("%s/%s/current/%s/index.json", f.baseURL, service, region)
}

func (f *BulkFetcher) Fetch(ctx context.Context, service, region string) ([]byte, error) {
	url := f.CatalogURL(service, region)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &catalog.NetworkError{Service: service, Region: region, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &catalog.UpstreamError{Service: service, Region: region, StatusCode: resp.StatusCode}
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 && (f.maxBytes <= 0 || resp.ContentLength <= f.maxBytes) {
		buf.Grow(int(resp.ContentLength))
	}
	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, err := io.Copy(&buf, body)
	if err != nil {
		return nil, &catalog.NetworkError{Service: service, Region: region, Err: fmt.Errorf("reading body after %d bytes: %w", n, err)}
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return nil, &catalog.UpstreamError{Service: service, Region: region, StatusCode: resp.StatusCode, Err: fmt.Errorf("catalog exceeds %d bytes", f.maxBytes)}
	}

	f.logger.Debugf("downloaded %s catalog [region=%s, bytes=%d, duration=%s]", service, region, n, time.Since(start).Round(time.Millisecond))
	return buf.Bytes(), nil
}
