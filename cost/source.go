package cost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// DefaultQueryURL is the public pricing query service.
const DefaultQueryURL = "https://pricing.infralink.io/graphql"

const maxRetries = 3

// GraphQLSource sends query documents to the pricing query service over HTTP.
type GraphQLSource struct {
	client     *http.Client
	url        string
	retryDelay time.Duration // base unit for exponential backoff
	logger     log.FieldLogger
}

func NewGraphQLSource(client *http.Client, url string, logger log.FieldLogger) *GraphQLSource {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if url == "" {
		url = DefaultQueryURL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &GraphQLSource{
		client:     client,
		url:        url,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "query-source"),
	}
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   *Candidates    `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (s *GraphQLSource) Query(ctx context.Context, document string) (*Candidates, error) {
	body, err := json.Marshal(map[string]string{"query": document})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	resp, err := s.doWithRetry(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("query service returned errors: %s", strings.Join(msgs, "; "))
	}
	if out.Data == nil {
		return nil, errors.New("query service returned no data")
	}
	return out.Data, nil
}

// doWithRetry retries transport failures, 429 and 5xx responses with exponential backoff.
func (s *GraphQLSource) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	delay := s.retryDelay
	if delay == 0 {
		delay = time.Second
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = delay
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, maxRetries-1), ctx)

	attempts := 0
	op := func() (*http.Response, error) {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("query service returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, backoff.Permanent(fmt.Errorf("query service returned status %d", resp.StatusCode))
		}
		return resp, nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.WithError(err).Debugf("retrying query in %s [attempt=%d/%d]", next, attempts+1, maxRetries)
	}

	resp, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		if ctx.Err() != nil || attempts < maxRetries {
			return nil, err
		}
		return nil, fmt.Errorf("query service failed after %d attempts: %w", maxRetries, err)
	}
	return resp, nil
}
