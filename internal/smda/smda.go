// Package smda defines the contract between the session core and the SMDA
// masterdata service.
//
// Every query runs with two credentials brokered by the session store: a
// user-scoped access token and a subscription key. The real client binds to
// the SMDA REST API; tests and local development use the stub.
package smda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors the route layer maps onto response codes.
var (
	// ErrNoFieldsFound signals that none of the requested identifiers exist
	// in SMDA.
	ErrNoFieldsFound = errors.New("smda: no fields found")
	// ErrCoordinateSystemNotFound signals that a field references a
	// coordinate system SMDA does not know.
	ErrCoordinateSystemNotFound = errors.New("smda: coordinate system not found")
)

// Field identifies an SMDA field (asset) by name and, once resolved, UUID.
type Field struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid,omitempty"`
}

// FieldSearchResult is one page of a field search. Pagination is not
// implemented; callers refine the search instead of paging.
type FieldSearchResult struct {
	Hits    int     `json:"hits"`
	Pages   int     `json:"pages"`
	Results []Field `json:"results"`
}

// CoordinateSystem is one projected coordinate system known to SMDA.
type CoordinateSystem struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// Country is a country a field belongs to.
type Country struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// Discovery is a discovery tied to a field. Discoveries without a short
// identifier are not returned.
type Discovery struct {
	FieldIdentifier string `json:"field_identifier"`
	Identifier      string `json:"identifier"`
	ShortIdentifier string `json:"short_identifier"`
	UUID            string `json:"uuid"`
}

// StratigraphicColumn names a stratigraphic column covering a field area.
type StratigraphicColumn struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// Masterdata aggregates everything a project configuration confirms in the
// GUI. A Masterdata value is complete: queries never return partial data.
type Masterdata struct {
	Field                 []Field               `json:"field"`
	Country               []Country             `json:"country"`
	Discovery             []Discovery           `json:"discovery"`
	StratigraphicColumns  []StratigraphicColumn `json:"stratigraphic_columns"`
	FieldCoordinateSystem CoordinateSystem      `json:"field_coordinate_system"`
	CoordinateSystems     []CoordinateSystem    `json:"coordinate_systems"`
}

// Client queries SMDA on behalf of one session.
type Client interface {
	// CheckHealth verifies the credentials can reach SMDA at all.
	CheckHealth(ctx context.Context) error
	// SearchFields looks up fields matching the given identifier.
	SearchFields(ctx context.Context, identifier string) (FieldSearchResult, error)
	// Masterdata gathers project masterdata for the given field
	// identifiers. Duplicates are collapsed before querying.
	Masterdata(ctx context.Context, identifiers []string) (Masterdata, error)
}

// Connector builds a Client from session credentials.
type Connector interface {
	Connect(ctx context.Context, accessToken, subscriptionKey string) (Client, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, accessToken, subscriptionKey string) (Client, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, accessToken, subscriptionKey string) (Client, error) {
	return f(ctx, accessToken, subscriptionKey)
}

// StubClient is an in-memory Client for tests and local development.
type StubClient struct {
	Fields            []Field
	Countries         []Country
	Discoveries       []Discovery
	StratColumns      []StratigraphicColumn
	CoordinateSystems []CoordinateSystem
	// Err, when set, fails every query.
	Err error

	mu      sync.Mutex
	queries int
}

// CheckHealth reports the configured error, if any.
func (c *StubClient) CheckHealth(_ context.Context) error {
	c.count()
	return c.Err
}

// SearchFields returns the configured fields matching identifier exactly.
func (c *StubClient) SearchFields(_ context.Context, identifier string) (FieldSearchResult, error) {
	c.count()
	if c.Err != nil {
		return FieldSearchResult{}, c.Err
	}
	var res FieldSearchResult
	for _, f := range c.Fields {
		if f.Identifier == identifier {
			res.Results = append(res.Results, f)
		}
	}
	res.Hits = len(res.Results)
	if res.Hits > 0 {
		res.Pages = 1
	}
	return res, nil
}

// Masterdata resolves the configured data for the given identifiers.
func (c *StubClient) Masterdata(_ context.Context, identifiers []string) (Masterdata, error) {
	c.count()
	if c.Err != nil {
		return Masterdata{}, c.Err
	}
	unique := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		unique[id] = true
	}
	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var fields []Field
	for _, id := range sorted {
		for _, f := range c.Fields {
			if f.Identifier == id {
				fields = append(fields, f)
			}
		}
	}
	if len(fields) == 0 {
		return Masterdata{}, fmt.Errorf("%w for identifiers: %v", ErrNoFieldsFound, sorted)
	}
	if len(c.CoordinateSystems) == 0 {
		return Masterdata{}, fmt.Errorf("%w: referenced by field %q", ErrCoordinateSystemNotFound, fields[0].Identifier)
	}
	return Masterdata{
		Field:                 fields,
		Country:               append([]Country(nil), c.Countries...),
		Discovery:             append([]Discovery(nil), c.Discoveries...),
		StratigraphicColumns:  append([]StratigraphicColumn(nil), c.StratColumns...),
		FieldCoordinateSystem: c.CoordinateSystems[0],
		CoordinateSystems:     append([]CoordinateSystem(nil), c.CoordinateSystems...),
	}, nil
}

// Queries reports how many calls the stub has served.
func (c *StubClient) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

func (c *StubClient) count() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
}

// StubConnector hands out one stub client and records the credentials it
// was last asked to connect with.
type StubConnector struct {
	Client *StubClient
	// Err, when set, fails every Connect call.
	Err error

	mu               sync.Mutex
	lastAccessToken  string
	lastSubscription string
}

// Connect implements Connector.
func (c *StubConnector) Connect(_ context.Context, accessToken, subscriptionKey string) (Client, error) {
	c.mu.Lock()
	c.lastAccessToken = accessToken
	c.lastSubscription = subscriptionKey
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Client == nil {
		return &StubClient{}, nil
	}
	return c.Client, nil
}

// Credentials returns the access token and subscription key from the most
// recent Connect call.
func (c *StubConnector) Credentials() (accessToken, subscriptionKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAccessToken, c.lastSubscription
}
