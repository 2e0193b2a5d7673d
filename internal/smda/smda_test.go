package smda

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStubClientSearchFields(t *testing.T) {
	t.Parallel()
	c := &StubClient{
		Fields: []Field{
			{Identifier: "DROGON", UUID: "uuid-drogon"},
			{Identifier: "VOLVE", UUID: "uuid-volve"},
		},
	}

	res, err := c.SearchFields(t.Context(), "DROGON")
	if err != nil {
		t.Fatalf("SearchFields: %v", err)
	}
	if res.Hits != 1 || res.Pages != 1 || len(res.Results) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Results[0].UUID != "uuid-drogon" {
		t.Fatalf("result uuid = %q", res.Results[0].UUID)
	}

	res, err = c.SearchFields(t.Context(), "JOHAN")
	if err != nil {
		t.Fatalf("SearchFields miss: %v", err)
	}
	if res.Hits != 0 || res.Pages != 0 || len(res.Results) != 0 {
		t.Fatalf("miss result = %+v", res)
	}
}

func TestStubClientMasterdata(t *testing.T) {
	t.Parallel()
	c := &StubClient{
		Fields:            []Field{{Identifier: "DROGON", UUID: "uuid-drogon"}},
		Countries:         []Country{{Identifier: "Norway", UUID: "uuid-no"}},
		Discoveries:       []Discovery{{FieldIdentifier: "DROGON", Identifier: "DROGON", ShortIdentifier: "DRG", UUID: "uuid-disc"}},
		StratColumns:      []StratigraphicColumn{{Identifier: "DROGON_2020", UUID: "uuid-strat"}},
		CoordinateSystems: []CoordinateSystem{{Identifier: "ST_WGS84_UTM37N_P32637", UUID: "uuid-crs"}},
	}

	md, err := c.Masterdata(t.Context(), []string{"DROGON", "DROGON"})
	if err != nil {
		t.Fatalf("Masterdata: %v", err)
	}
	if len(md.Field) != 1 {
		t.Fatalf("duplicate identifiers not collapsed: %+v", md.Field)
	}
	if md.FieldCoordinateSystem.UUID != "uuid-crs" {
		t.Fatalf("field crs = %+v", md.FieldCoordinateSystem)
	}
	if len(md.Country) != 1 || len(md.Discovery) != 1 || len(md.StratigraphicColumns) != 1 {
		t.Fatalf("masterdata = %+v", md)
	}
}

func TestStubClientMasterdataErrors(t *testing.T) {
	t.Parallel()
	c := &StubClient{
		Fields: []Field{{Identifier: "DROGON", UUID: "uuid-drogon"}},
	}

	if _, err := c.Masterdata(t.Context(), []string{"NOSUCH"}); !errors.Is(err, ErrNoFieldsFound) {
		t.Fatalf("unknown identifiers = %v want ErrNoFieldsFound", err)
	}
	if _, err := c.Masterdata(t.Context(), []string{"DROGON"}); !errors.Is(err, ErrCoordinateSystemNotFound) {
		t.Fatalf("missing crs = %v want ErrCoordinateSystemNotFound", err)
	}

	c.Err = fmt.Errorf("upstream 500")
	if err := c.CheckHealth(t.Context()); err == nil {
		t.Fatal("CheckHealth with configured error succeeded")
	}
	if c.Queries() != 3 {
		t.Fatalf("Queries = %d want 3", c.Queries())
	}
}

func TestStubConnector(t *testing.T) {
	t.Parallel()
	stub := &StubClient{}
	conn := &StubConnector{Client: stub}

	c, err := conn.Connect(t.Context(), "tok", "sub")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c != Client(stub) {
		t.Fatal("Connect returned a different client")
	}
	tok, sub := conn.Credentials()
	if tok != "tok" || sub != "sub" {
		t.Fatalf("Credentials = %q %q", tok, sub)
	}

	conn.Err = fmt.Errorf("subscription revoked")
	if _, err := conn.Connect(t.Context(), "tok2", "sub2"); err == nil {
		t.Fatal("Connect with configured error succeeded")
	}
}

func TestConnectorFunc(t *testing.T) {
	t.Parallel()
	var gotToken, gotSub string
	conn := ConnectorFunc(func(_ context.Context, accessToken, subscriptionKey string) (Client, error) {
		gotToken, gotSub = accessToken, subscriptionKey
		return &StubClient{}, nil
	})
	if _, err := conn.Connect(t.Context(), "t", "s"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if gotToken != "t" || gotSub != "s" {
		t.Fatalf("Connect forwarded %q %q", gotToken, gotSub)
	}
}
