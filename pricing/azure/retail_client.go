package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"
)

const retailPricesBaseURL = "https://prices.azure.com/api/retail/prices"

const maxRetries = 3

// DefaultClientFactory creates production Azure API clients.
// A single shared HTTP client is reused across all regions for connection pooling.
type DefaultClientFactory struct {
	client *http.Client
}

func NewDefaultClientFactory(timeout time.Duration) *DefaultClientFactory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DefaultClientFactory{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (f *DefaultClientFactory) NewRetailPricesClient(currency string) RetailPricesClient {
	return &HTTPRetailPricesClient{
		client:     f.client,
		baseURL:    retailPricesBaseURL,
		currency:   currency,
		retryDelay: time.Second,
	}
}

// HTTPRetailPricesClient calls the Azure Retail Prices REST API over HTTP.
type HTTPRetailPricesClient struct {
	client     *http.Client
	baseURL    string        // overridable for tests
	currency   string        // ISO code; empty means the API default (USD)
	retryDelay time.Duration // base unit for exponential backoff; defaults to time.Second
}

func (c *HTTPRetailPricesClient) GetVMPrices(ctx context.Context, region string, osTypes []string) ([]RetailPriceItem, error) {
	filter := fmt.Sprintf(
		"serviceName eq 'Virtual Machines' and priceType eq 'Consumption' and armRegionName eq '%s' and isPrimaryMeterRegion eq true",
		odataString(region),
	)

	// Azure has no explicit "os" field; Windows products contain "Windows" in productName.
	// Only applied for single-OS requests, callers filter the rest.
	if len(osTypes) == 1 {
		switch osTypes[0] {
		case "Windows":
			filter += " and contains(productName, 'Windows')"
		case "Linux":
			filter += " and contains(productName, 'Windows') eq false"
		}
	}

	query := "$filter=" + url.QueryEscape(filter)
	if c.currency != "" {
		query = "currencyCode=" + url.QueryEscape("'"+c.currency+"'") + "&" + query
	}
	nextURL := c.baseURL + "?" + query

	var results []RetailPriceItem

	for nextURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.doWithRetry(req)
		if err != nil {
			return nil, fmt.Errorf("fetching Azure prices: %w", err)
		}

		var page RetailPriceResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding Azure response: %w", err)
		}

		for _, item := range page.Items {
			if item.UnitOfMeasure != "1 Hour" {
				continue
			}
			if strings.Contains(item.MeterName, "Spot") || strings.Contains(item.MeterName, "Low Priority") {
				continue
			}
			if item.RetailPrice <= 0 {
				log.Debugf("Skipping Azure item with non-positive price: sku=%s region=%s price=%f", item.ArmSkuName, item.ArmRegionName, item.RetailPrice)
				continue
			}
			if item.ArmSkuName == "" {
				log.Debugf("Skipping Azure item with empty armSkuName: meterName=%s region=%s", item.MeterName, item.ArmRegionName)
				continue
			}
			results = append(results, item)
		}

		validNext, err := validateNextPageLink(page.NextPageLink, c.baseURL)
		if err != nil {
			log.WithError(err).Warn("invalid NextPageLink, stopping pagination")
			break
		}
		nextURL = validNext
	}

	return results, nil
}

// odataString escapes a value for use inside a single-quoted OData literal.
func odataString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// doWithRetry retries transport errors, 429 and 5xx with exponential backoff.
// Any other non-200 status fails immediately.
func (c *HTTPRetailPricesClient) doWithRetry(req *http.Request) (*http.Response, error) {
	delay := c.retryDelay
	if delay == 0 {
		delay = time.Second
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			r, err := c.client.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				r.Body.Close()
				return fmt.Errorf("Azure API returned status %d", r.StatusCode)
			}
			if r.StatusCode != http.StatusOK {
				r.Body.Close()
				return retry.Unrecoverable(fmt.Errorf("Azure API returned status %d", r.StatusCode))
			}
			resp = r
			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(maxRetries),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Debugf("retrying Azure API request [attempt=%d, url=%s]", n+1, req.URL.Redacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("Azure API failed after %d attempts: %w", maxRetries, err)
	}
	return resp, nil
}

func validateNextPageLink(next, baseURL string) (string, error) {
	if next == "" {
		return "", nil
	}
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("invalid NextPageLink %q: %w", next, err)
	}
	base, _ := url.Parse(baseURL)
	if u.Host != base.Host || u.Scheme != base.Scheme {
		return "", fmt.Errorf("NextPageLink host %q does not match expected %q", u.Host, base.Host)
	}
	return next, nil
}
