package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pixelfederation/spark-guide/calculator"
	"github.com/pixelfederation/spark-guide/config"
	"github.com/pixelfederation/spark-guide/pricing"
	"github.com/pixelfederation/spark-guide/pricing/azure"
)

const twoNodeCatalog = `{
	"Standard_DS3_v2": {"Canada Central": {"TotalPrice": 2.50, "CPUs": 4}},
	"Standard_DS4_v2": {"Canada Central": {"TotalPrice": 1.576, "CPUs": 8}}
}`

func runCmd(t *testing.T, o *options, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(o)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestCost_EmbeddedCatalog(t *testing.T) {
	out, err := runCmd(t, &options{}, "cost", "--node-type", "Standard_DS3_v2", "--nodes", "4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Cost of the cluster is 3.152 CAD per hour.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCost_CatalogFile(t *testing.T) {
	path := writeTemp(t, "pricing.json", twoNodeCatalog)

	out, err := runCmd(t, &options{}, "--catalog", path, "cost", "--node-type", "Standard_DS3_v2", "--nodes", "4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Cost of the cluster is 10 CAD per hour.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCost_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "zero nodes", args: []string{"cost", "--node-type", "Standard_DS3_v2", "--nodes", "0"}, wantErr: calculator.ErrInvalidArgument},
		{name: "unknown node type", args: []string{"cost", "--node-type", "Standard_XYZ"}, wantErr: pricing.ErrNotFound},
		{name: "unknown region", args: []string{"--region", "Mars", "cost", "--node-type", "Standard_DS3_v2"}, wantErr: pricing.ErrNotFound},
		{name: "missing catalog file", args: []string{"--catalog", "/nonexistent/pricing.json", "cost", "--node-type", "Standard_DS3_v2"}, wantErr: pricing.ErrDataUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, &options{}, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCost_RequiresNodeType(t *testing.T) {
	if _, err := runCmd(t, &options{}, "cost", "--nodes", "2"); err == nil {
		t.Error("expected error without --node-type")
	}
}

func TestPartitions_FromNodeType(t *testing.T) {
	out, err := runCmd(t, &options{}, "partitions",
		"--node-type", "Standard_DS3_v2", "--workers", "2",
		"--shuffle-read-gb", "100", "--target-size-mb", "128")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Total cores: 8") {
		t.Errorf("expected 8 total cores, got:\n%s", out)
	}
	if !strings.Contains(out, `spark.conf.set("spark.sql.shuffle.partitions", 776)`) {
		t.Errorf("expected 776 partitions, got:\n%s", out)
	}
}

func TestPartitions_FromCores(t *testing.T) {
	out, err := runCmd(t, &options{}, "partitions", "--cores", "16", "--shuffle-read-gb", "1", "--target-size-mb", "1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "you should be using is 16") {
		t.Errorf("expected 16 partitions, got:\n%s", out)
	}
}

func TestPartitions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "no core source", args: []string{"partitions", "--shuffle-read-gb", "100", "--target-size-mb", "128"}, wantErr: calculator.ErrInvalidArgument},
		{name: "zero cores", args: []string{"partitions", "--cores", "0", "--shuffle-read-gb", "100", "--target-size-mb", "128"}, wantErr: calculator.ErrInvalidArgument},
		{name: "zero workers", args: []string{"partitions", "--node-type", "Standard_DS3_v2", "--workers", "0", "--shuffle-read-gb", "100", "--target-size-mb", "128"}, wantErr: calculator.ErrInvalidArgument},
		{name: "fractional read", args: []string{"partitions", "--cores", "8", "--shuffle-read-gb", "0.5", "--target-size-mb", "128"}, wantErr: calculator.ErrInvalidArgument},
		{name: "unknown node type", args: []string{"partitions", "--node-type", "Standard_XYZ", "--shuffle-read-gb", "100", "--target-size-mb", "128"}, wantErr: pricing.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, &options{}, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPartitions_FlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing target size", args: []string{"partitions", "--cores", "8", "--shuffle-read-gb", "100"}},
		{name: "cores with node type", args: []string{"partitions", "--cores", "8", "--node-type", "Standard_DS3_v2", "--shuffle-read-gb", "100", "--target-size-mb", "128"}},
		{name: "cores with workers", args: []string{"partitions", "--cores", "8", "--workers", "4", "--shuffle-read-gb", "100", "--target-size-mb", "128"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCmd(t, &options{}, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestServe_RejectsRoutedMetricsPath(t *testing.T) {
	_, err := runCmd(t, &options{}, "serve", "--metrics-path", "/api/v1/cost")
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Errorf("expected metrics path collision error, got %v", err)
	}
}

func TestCatalogList(t *testing.T) {
	out, err := runCmd(t, &options{}, "--region", "Canada East", "catalog", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "PRICE (CAD/HOUR)") {
		t.Errorf("expected header, got:\n%s", out)
	}
	var found bool
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Standard_DS3_v2") && strings.Contains(line, "0.766") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Standard_DS3_v2 priced 0.766 in Canada East, got:\n%s", out)
	}
}

func TestCatalogValidate(t *testing.T) {
	good := writeTemp(t, "good.json", twoNodeCatalog)
	out, err := runCmd(t, &options{}, "catalog", "validate", good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "catalog OK: 2 node types") {
		t.Errorf("unexpected output:\n%s", out)
	}

	bad := writeTemp(t, "bad.json", `{
		"Standard_DS3_v2": {"Canada Central": {"TotalPrice": 0.788, "CPUs": 4}},
		"Standard_DS4_v2": {"Canada East": {"TotalPrice": 1.532, "CPUs": 8}}
	}`)
	if _, err := runCmd(t, &options{}, "catalog", "validate", bad); !errors.Is(err, pricing.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestCatalogValidate_Embedded(t *testing.T) {
	out, err := runCmd(t, &options{}, "catalog", "validate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Canada Central") {
		t.Errorf("expected embedded regions, got:\n%s", out)
	}
}

type mockRetailPricesClient struct {
	GetVMPricesFn func(ctx context.Context, region string, osTypes []string) ([]azure.RetailPriceItem, error)
}

func (m *mockRetailPricesClient) GetVMPrices(ctx context.Context, region string, osTypes []string) ([]azure.RetailPriceItem, error) {
	return m.GetVMPricesFn(ctx, region, osTypes)
}

type mockClientFactory struct {
	client   azure.RetailPricesClient
	currency string
}

func (f *mockClientFactory) NewRetailPricesClient(currency string) azure.RetailPricesClient {
	f.currency = currency
	return f.client
}

func TestCatalogSync(t *testing.T) {
	base := writeTemp(t, "pricing.json", twoNodeCatalog)
	output := filepath.Join(t.TempDir(), "refreshed.json")

	factory := &mockClientFactory{client: &mockRetailPricesClient{
		GetVMPricesFn: func(ctx context.Context, region string, osTypes []string) ([]azure.RetailPriceItem, error) {
			return []azure.RetailPriceItem{
				{ArmSkuName: "Standard_DS3_v2", RetailPrice: 0.293, ProductName: "Virtual Machines DSv2 Series", UnitOfMeasure: "1 Hour"},
				{ArmSkuName: "Standard_DS4_v2", RetailPrice: 0.585, ProductName: "Virtual Machines DSv2 Series", UnitOfMeasure: "1 Hour"},
			}, nil
		},
	}}

	_, err := runCmd(t, &options{azureFactory: factory}, "--catalog", base, "catalog", "sync",
		"--regions", "Canada Central", "--currency", "USD", "--vm-only", "--output", output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if factory.currency != "USD" {
		t.Errorf("expected USD client, got %q", factory.currency)
	}

	refreshed, err := pricing.Load(context.Background(), pricing.FileSource{Path: output})
	if err != nil {
		t.Fatalf("loading refreshed catalog: %v", err)
	}
	spec, err := refreshed.Lookup("Standard_DS3_v2", "Canada Central")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !spec.TotalPrice.Equal(decimal.RequireFromString("0.293")) || spec.CPUs != 4 {
		t.Errorf("expected refreshed price 0.293 with 4 CPUs, got %+v", spec)
	}
}

func TestCatalogSync_RequiresVMOnly(t *testing.T) {
	output := filepath.Join(t.TempDir(), "refreshed.json")
	factory := &mockClientFactory{client: &mockRetailPricesClient{
		GetVMPricesFn: func(ctx context.Context, region string, osTypes []string) ([]azure.RetailPriceItem, error) {
			t.Error("unexpected Azure call without --vm-only")
			return nil, nil
		},
	}}

	_, err := runCmd(t, &options{azureFactory: factory}, "catalog", "sync", "--output", output)
	if !errors.Is(err, azure.ErrVMOnlyPrices) {
		t.Fatalf("expected ErrVMOnlyPrices, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("expected no output file, got %v", err)
	}

	out, err := runCmd(t, &options{}, "cost", "--node-type", "Standard_DS3_v2", "--nodes", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "0.788") {
		t.Errorf("expected embedded Databricks price 0.788, got:\n%s", out)
	}
}

func TestCatalogSync_FailureKeepsOutput(t *testing.T) {
	base := writeTemp(t, "pricing.json", twoNodeCatalog)
	output := writeTemp(t, "existing.json", "previous")

	factory := &mockClientFactory{client: &mockRetailPricesClient{
		GetVMPricesFn: func(ctx context.Context, region string, osTypes []string) ([]azure.RetailPriceItem, error) {
			return nil, errors.New("connection refused")
		},
	}}

	if _, err := runCmd(t, &options{azureFactory: factory}, "--catalog", base, "catalog", "sync", "--vm-only", "--output", output); err == nil {
		t.Fatal("expected error, got nil")
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "previous" {
		t.Errorf("expected existing output to be untouched, got %q", data)
	}
}

func TestNewHTTPServer(t *testing.T) {
	catalog, err := pricing.Parse([]byte(twoNodeCatalog))
	if err != nil {
		t.Fatalf("parsing catalog: %v", err)
	}
	o := &options{cfg: config.DefaultConfig()}

	srv := newHTTPServer(o, catalog)
	if srv.Addr != ":8080" {
		t.Errorf("expected default address, got %q", srv.Addr)
	}
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/cost?node_type=Standard_DS3_v2&nodes=4")
	if err != nil {
		t.Fatalf("GET cost: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"hourly_cost":10`) {
		t.Errorf("unexpected cost response %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"databricks_pricing_node_hourly_price", "go_goroutines", "spark_guide_calculations_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %s on metrics page", want)
		}
	}
}
