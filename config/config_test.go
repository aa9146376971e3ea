package config

import (
	"reflect"
	"testing"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		busID string
		want  string
	}{
		{"BUS_01", "bus_01"},
		{"BUS_02", "bus_02"},
		{"Shuttle-A", "shuttle_a"},
		{"bus 3", "bus_3"},
	}

	for _, c := range cases {
		if got := Slug(c.busID); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.busID, got, c.want)
		}
	}
}

func TestNewConfig_RejectsSlugCollision(t *testing.T) {
	// BUS-01 and BUS_01 both map to the bus_01_* tables
	t.Setenv("FLEET_BUSES", "BUS-01,BUS_01")

	if _, err := NewConfig(""); err == nil {
		t.Fatal("expected an error for bus IDs sharing a table slug")
	}
}

func TestNewConfig_AcceptsDistinctFleet(t *testing.T) {
	t.Setenv("FLEET_BUSES", "BUS_01,BUS_02")

	cfg, err := NewConfig("")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if got := cfg.Fleet.BusIDs(); len(got) != 2 {
		t.Fatalf("fleet = %v, want two buses", got)
	}
}

func TestFleetConfig_BusIDs(t *testing.T) {
	cases := []struct {
		buses string
		want  []string
	}{
		{"BUS_01,BUS_02", []string{"BUS_01", "BUS_02"}},
		{" BUS_01 , BUS_02 ", []string{"BUS_01", "BUS_02"}},
		{"BUS_01,,BUS_02,", []string{"BUS_01", "BUS_02"}},
		{"", nil},
	}

	for _, c := range cases {
		got := FleetConfig{Buses: c.buses}.BusIDs()
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("BusIDs(%q) = %v, want %v", c.buses, got, c.want)
		}
	}
}
