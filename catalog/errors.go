package catalog

import "fmt"

// NetworkError is returned when a catalog could not be retrieved at the transport level.
type NetworkError struct {
	Service string
	Region  string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s catalog [region=%s]: %v", e.Service, e.Region, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is returned when the catalog endpoint answers with a non-2xx status.
type UpstreamError struct {
	Service    string
	Region     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error fetching %s catalog [region=%s, status=%d]: %v", e.Service, e.Region, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream error fetching %s catalog [region=%s, status=%d]", e.Service, e.Region, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ParseError is returned when a catalog payload does not have the expected document shape.
type ParseError struct {
	Service string
	Region  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("couldn't parse %s catalog [region=%s]: %v", e.Service, e.Region, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistError is returned once a batch write has failed on every attempt.
type PersistError struct {
	Table    string
	Attempts int
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("couldn't upsert into %s after %d attempts: %v", e.Table, e.Attempts, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// NoMatchingResourceError means a region has no priced row for a required resource class.
type NoMatchingResourceError struct {
	Region   string
	Resource string
}

func (e *NoMatchingResourceError) Error() string {
	return fmt.Sprintf("no matching %s [region=%s]", e.Resource, e.Region)
}
