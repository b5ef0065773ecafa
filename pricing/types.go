package pricing

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDataUnavailable is returned when the pricing source is missing or malformed.
	ErrDataUnavailable = errors.New("pricing data unavailable")

	// ErrNotFound is returned by Lookup for an unknown node type or region.
	ErrNotFound = errors.New("not found in pricing catalog")
)

// Leaf keys of the pricing source. Older tables spelled the price key
// with a space; it is still accepted on read.
const (
	keyTotalPrice       = "TotalPrice"
	keyLegacyTotalPrice = "Total Price"
	keyCPUs             = "CPUs"
)

// NodeSpec is the hourly price and core count of a node type in one region.
type NodeSpec struct {
	TotalPrice decimal.Decimal
	CPUs       int
}

// nodeSpecJSON is the serialized leaf. json.Number keeps the price a bare
// JSON number instead of decimal's default quoted string.
type nodeSpecJSON struct {
	TotalPrice json.Number `json:"TotalPrice"`
	CPUs       int         `json:"CPUs"`
}

func (n NodeSpec) toJSON() nodeSpecJSON {
	return nodeSpecJSON{
		TotalPrice: json.Number(n.TotalPrice.String()),
		CPUs:       n.CPUs,
	}
}
