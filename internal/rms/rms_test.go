package rms

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStubProjectQueries(t *testing.T) {
	t.Parallel()
	p := &StubProject{
		ZoneList:    []Zone{{Name: "Valysar", Top: "TopValysar", Base: "TopTherys"}},
		HorizonList: []string{"TopValysar", "TopTherys"},
		WellList:    []string{"55_33-1"},
	}

	zones, err := p.Zones()
	if err != nil {
		t.Fatalf("Zones: %v", err)
	}
	if len(zones) != 1 || zones[0].Name != "Valysar" {
		t.Fatalf("zones = %+v", zones)
	}
	horizons, err := p.Horizons()
	if err != nil {
		t.Fatalf("Horizons: %v", err)
	}
	if len(horizons) != 2 {
		t.Fatalf("horizons = %v", horizons)
	}
	wells, err := p.Wells()
	if err != nil {
		t.Fatalf("Wells: %v", err)
	}
	if len(wells) != 1 {
		t.Fatalf("wells = %v", wells)
	}
}

func TestStubProjectClose(t *testing.T) {
	t.Parallel()
	p := &StubProject{HorizonList: []string{"Top"}}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	if _, err := p.Horizons(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Horizons after Close = %v want ErrClosed", err)
	}
	if err := p.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close = %v want ErrClosed", err)
	}
	if p.Closes != 2 {
		t.Fatalf("Closes = %d want 2", p.Closes)
	}
}

func TestStubOpener(t *testing.T) {
	t.Parallel()
	stub := &StubProject{}
	opener := &StubOpener{Projects: map[string]*StubProject{"/rms/drogon": stub}}

	p, err := opener.Open(t.Context(), "/rms/drogon", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p != Project(stub) {
		t.Fatal("Open returned a different project")
	}
	if _, err := opener.Open(t.Context(), "/rms/missing", DefaultVersion); err == nil {
		t.Fatal("Open of unknown path succeeded")
	}

	opener.Err = fmt.Errorf("license pool exhausted")
	if _, err := opener.Open(t.Context(), "/rms/drogon", ""); err == nil {
		t.Fatal("Open with configured error succeeded")
	}
}

func TestOpenerFunc(t *testing.T) {
	t.Parallel()
	var gotPath, gotVersion string
	opener := OpenerFunc(func(_ context.Context, path, version string) (Project, error) {
		gotPath, gotVersion = path, version
		return &StubProject{}, nil
	})
	if _, err := opener.Open(t.Context(), "/p", "14.2.2"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotPath != "/p" || gotVersion != "14.2.2" {
		t.Fatalf("Open forwarded %q %q", gotPath, gotVersion)
	}
}
