package pricing

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ZoneRate is the standard shipping rate card for one zone.
type ZoneRate struct {
	Base          decimal.Decimal
	PerItem       decimal.Decimal
	FreeThreshold decimal.Decimal
}

// ExpressRule prices express shipping as
// (standard, or Floor when standard is free) × Multiplier + Surcharge.
type ExpressRule struct {
	Floor      decimal.Decimal
	Multiplier decimal.Decimal
	Surcharge  decimal.Decimal
}

// Tables holds every rate the engine uses.
type Tables struct {
	Zones          map[Zone]ZoneRate
	StateZones     map[string]Zone
	TaxRates       map[string]decimal.Decimal
	DefaultZone    Zone
	DefaultTaxRate decimal.Decimal
	Express        ExpressRule
}

// StatesIn returns the sorted state codes assigned to zone.
func (t Tables) StatesIn(zone Zone) []string {
	var out []string
	for state, z := range t.StateZones {
		if z == zone {
			out = append(out, state)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks that the tables are internally consistent.
func (t Tables) Validate() error {
	if len(t.Zones) == 0 {
		return errors.New("no shipping zones defined")
	}
	for zone, rate := range t.Zones {
		if _, err := ParseZone(string(zone)); err != nil {
			return err
		}
		if rate.Base.IsNegative() || rate.PerItem.IsNegative() || rate.FreeThreshold.IsNegative() {
			return errors.Errorf("zone %s: negative amount", zone)
		}
	}
	if _, ok := t.Zones[t.DefaultZone]; !ok {
		return errors.Errorf("default zone %q has no rates", t.DefaultZone)
	}
	for state, zone := range t.StateZones {
		if state == "" || state != normalizeState(state) {
			return errors.Errorf("state code %q is not normalized", state)
		}
		if _, ok := t.Zones[zone]; !ok {
			return errors.Errorf("state %s: zone %q has no rates", state, zone)
		}
	}
	for state, rate := range t.TaxRates {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return errors.Errorf("state %s: tax rate %s out of range", state, rate)
		}
	}
	if t.DefaultTaxRate.IsNegative() || t.DefaultTaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.Errorf("default tax rate %s out of range", t.DefaultTaxRate)
	}
	x := t.Express
	if x.Floor.IsNegative() || x.Surcharge.IsNegative() || !x.Multiplier.IsPositive() {
		return errors.New("invalid express rule")
	}
	return nil
}

type tablesFile struct {
	DefaultZone    string                     `yaml:"default_zone"`
	DefaultTaxRate decimal.Decimal            `yaml:"default_tax_rate"`
	Express        expressFile                `yaml:"express"`
	Zones          map[string]zoneFile        `yaml:"zones"`
	TaxRates       map[string]decimal.Decimal `yaml:"tax_rates"`
}

type expressFile struct {
	Floor      decimal.Decimal `yaml:"floor"`
	Multiplier decimal.Decimal `yaml:"multiplier"`
	Surcharge  decimal.Decimal `yaml:"surcharge"`
}

type zoneFile struct {
	Base          decimal.Decimal `yaml:"base"`
	PerItem       decimal.Decimal `yaml:"per_item"`
	FreeThreshold decimal.Decimal `yaml:"free_threshold"`
	States        []string        `yaml:"states"`
}

// DecodeTables reads YAML rate tables from r and validates them.
func DecodeTables(r io.Reader) (Tables, error) {
	var f tablesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return Tables{}, errors.Wrap(err, "decode tables")
	}

	t := Tables{
		Zones:          make(map[Zone]ZoneRate, len(f.Zones)),
		StateZones:     make(map[string]Zone),
		TaxRates:       make(map[string]decimal.Decimal, len(f.TaxRates)),
		DefaultTaxRate: f.DefaultTaxRate,
		Express: ExpressRule{
			Floor:      f.Express.Floor,
			Multiplier: f.Express.Multiplier,
			Surcharge:  f.Express.Surcharge,
		},
	}

	zone, err := ParseZone(f.DefaultZone)
	if err != nil {
		return Tables{}, errors.Wrap(err, "default zone")
	}
	t.DefaultZone = zone

	for name, zf := range f.Zones {
		zone, err := ParseZone(name)
		if err != nil {
			return Tables{}, err
		}
		t.Zones[zone] = ZoneRate{Base: zf.Base, PerItem: zf.PerItem, FreeThreshold: zf.FreeThreshold}
		for _, s := range zf.States {
			state := normalizeState(s)
			if prev, dup := t.StateZones[state]; dup {
				return Tables{}, errors.Errorf("state %s listed in both %s and %s", state, prev, zone)
			}
			t.StateZones[state] = zone
		}
	}
	for s, rate := range f.TaxRates {
		t.TaxRates[normalizeState(s)] = rate
	}

	if err := t.Validate(); err != nil {
		return Tables{}, errors.Wrap(err, "validate tables")
	}
	return t, nil
}

// LoadTablesFile reads rate tables from a YAML file. Files ending in .gz
// are decompressed first.
func LoadTablesFile(path string) (Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tables{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return Tables{}, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	t, err := DecodeTables(r)
	if err != nil {
		return Tables{}, errors.Wrapf(err, "load %s", path)
	}
	return t, nil
}

var defaultTables = sync.OnceValue(func() Tables {
	t, err := DecodeTables(bytes.NewReader(defaultsYAML))
	if err != nil {
		panic(errors.Wrap(err, "embedded pricing tables"))
	}
	return t
})

// DefaultTables returns the embedded rate tables.
func DefaultTables() Tables {
	return defaultTables()
}
