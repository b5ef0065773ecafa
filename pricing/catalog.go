package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Catalog maps node type names to per-region pricing. It is immutable once
// built, so concurrent readers need no locking.
type Catalog struct {
	entries   map[string]map[string]NodeSpec
	nodeTypes []string
	regions   []string
}

// New validates entries and returns a catalog holding a private copy of them.
func New(entries map[string]map[string]NodeSpec) (*Catalog, error) {
	if err := Validate(entries, DefaultValidationRules()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	c := &Catalog{
		entries: copyEntries(entries),
	}
	c.nodeTypes = lo.Keys(c.entries)
	sort.Strings(c.nodeTypes)
	c.regions = supportedRegions(c.entries)
	return c, nil
}

// Parse decodes a pricing source document and validates it.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed pricing document: %w", ErrDataUnavailable, err)
	}

	var errs error
	entries := make(map[string]map[string]NodeSpec, len(raw))
	for nodeType, regions := range raw {
		entries[nodeType] = make(map[string]NodeSpec, len(regions))
		for region, leaf := range regions {
			spec, err := parseNodeSpec(leaf)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s: %w", nodeType, region, err))
				continue
			}
			entries[nodeType][region] = spec
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, errs)
	}
	return New(entries)
}

func parseNodeSpec(leaf map[string]json.RawMessage) (NodeSpec, error) {
	var errs error
	for key := range leaf {
		if key != keyTotalPrice && key != keyLegacyTotalPrice && key != keyCPUs {
			errs = multierr.Append(errs, fmt.Errorf("unknown key %q", key))
		}
	}

	priceRaw, hasPrice := leaf[keyTotalPrice]
	if legacy, ok := leaf[keyLegacyTotalPrice]; ok {
		if hasPrice {
			errs = multierr.Append(errs, fmt.Errorf("both %q and %q are set", keyTotalPrice, keyLegacyTotalPrice))
		}
		priceRaw, hasPrice = legacy, true
	}

	var spec NodeSpec
	if !hasPrice {
		errs = multierr.Append(errs, fmt.Errorf("missing %q", keyTotalPrice))
	} else if price, err := parseNumber(priceRaw); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", keyTotalPrice, err))
	} else {
		spec.TotalPrice = price
	}

	cpusRaw, ok := leaf[keyCPUs]
	if !ok {
		errs = multierr.Append(errs, fmt.Errorf("missing %q", keyCPUs))
	} else if cpus, err := strconv.Atoi(strings.TrimSpace(string(cpusRaw))); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: not an integer: %s", keyCPUs, cpusRaw))
	} else {
		spec.CPUs = cpus
	}

	return spec, errs
}

// parseNumber accepts bare JSON numbers only; quoted strings, null and
// booleans are rejected.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s[0] == '"' {
		return decimal.Zero, fmt.Errorf("not a number: %s", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %s", raw)
	}
	return d, nil
}

// NodeTypes returns the sorted node type names.
func (c *Catalog) NodeTypes() []string {
	return append([]string(nil), c.nodeTypes...)
}

// Regions returns the sorted set of supported regions. Every node type
// defines every one of them.
func (c *Catalog) Regions() []string {
	return append([]string(nil), c.regions...)
}

// HasRegion reports whether region is supported by the catalog.
func (c *Catalog) HasRegion(region string) bool {
	return lo.Contains(c.regions, region)
}

// Lookup returns the pricing of nodeType in region.
func (c *Catalog) Lookup(nodeType, region string) (NodeSpec, error) {
	regions, ok := c.entries[nodeType]
	if !ok {
		return NodeSpec{}, fmt.Errorf("node type %q: %w", nodeType, ErrNotFound)
	}
	spec, ok := regions[region]
	if !ok {
		return NodeSpec{}, fmt.Errorf("region %q for node type %q: %w", region, nodeType, ErrNotFound)
	}
	return spec, nil
}

// Entries returns a deep copy of the catalog contents.
func (c *Catalog) Entries() map[string]map[string]NodeSpec {
	return copyEntries(c.entries)
}

// Len returns the number of node types.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// WriteJSON serializes the catalog in the pricing source schema.
// encoding/json sorts map keys, so output is deterministic.
func (c *Catalog) WriteJSON(w io.Writer) error {
	out := make(map[string]map[string]nodeSpecJSON, len(c.entries))
	for nodeType, regions := range c.entries {
		out[nodeType] = make(map[string]nodeSpecJSON, len(regions))
		for region, spec := range regions {
			out[nodeType][region] = spec.toJSON()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func copyEntries(in map[string]map[string]NodeSpec) map[string]map[string]NodeSpec {
	out := make(map[string]map[string]NodeSpec, len(in))
	for nodeType, regions := range in {
		out[nodeType] = make(map[string]NodeSpec, len(regions))
		for region, spec := range regions {
			out[nodeType][region] = spec
		}
	}
	return out
}

func supportedRegions(entries map[string]map[string]NodeSpec) []string {
	set := map[string]struct{}{}
	for _, regions := range entries {
		for region := range regions {
			set[region] = struct{}{}
		}
	}
	regions := lo.Keys(set)
	sort.Strings(regions)
	return regions
}
