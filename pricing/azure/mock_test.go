package azure

import (
	"context"
	"sync"
)

// mockRetailPricesClient implements RetailPricesClient for testing.
type mockRetailPricesClient struct {
	GetVMPricesFn func(ctx context.Context, region string, osTypes []string) ([]RetailPriceItem, error)

	mu      sync.Mutex
	regions []string
}

func (m *mockRetailPricesClient) GetVMPrices(ctx context.Context, region string, osTypes []string) ([]RetailPriceItem, error) {
	m.mu.Lock()
	m.regions = append(m.regions, region)
	m.mu.Unlock()
	if m.GetVMPricesFn != nil {
		return m.GetVMPricesFn(ctx, region, osTypes)
	}
	return nil, nil
}

func (m *mockRetailPricesClient) calledRegions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.regions...)
}
