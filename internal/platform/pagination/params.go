package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPage is the page returned when the client omits the page parameter.
	DefaultPage = 1
	// DefaultPageSize defines the fallback number of items returned when the client omits limit.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps the supported limit to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Params bundles the page selection values extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// Offset converts the one-based page number into a row offset.
func (p Params) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options control how Parse behaves for a given handler layer.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPage     = errors.New("pagination: invalid page")
	ErrInvalidPageSize = errors.New("pagination: invalid limit")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	page, err := parsePage(values.Get("page"))
	if err != nil {
		return Params{}, err
	}

	limit, err := parseLimit(values.Get("limit"), opts)
	if err != nil {
		return Params{}, err
	}

	return Params{Page: page, Limit: limit}, nil
}

func parsePage(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultPage, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPage)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPage)
	}
	return value, nil
}

func parseLimit(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if strings.TrimSpace(raw) == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}
