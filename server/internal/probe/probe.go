package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

const defaultTimeout = 10 * time.Second

// Metric family names exported by the server.
const (
	familySessions        = "highstakes_sessions"
	familyOffers          = "highstakes_offers"
	familyStreamClients   = "highstakes_stream_clients"
	familySessionsCreated = "highstakes_sessions_created_total"
	familyStakesSubmitted = "highstakes_stakes_submitted_total"
	familyStakesRejected  = "highstakes_stakes_rejected_total"
	familyAlertsFired     = "highstakes_alerts_fired_total"
)

// Report is one scrape of a server, reduced to the values an operator checks.
type Report struct {
	ScrapedAt       time.Time
	Sessions        float64
	Offers          float64
	StreamClients   float64
	SessionsCreated float64
	StakesSubmitted float64
	AlertsFired     float64

	// Rejected holds stakes_rejected_total by reason label.
	Rejected map[string]float64
}

// Probe scrapes one server.
type Probe struct {
	base   string
	client *http.Client
}

// New returns a Probe for the server at baseURL. When apiKey is non-empty it
// is sent in header on every request.
func New(baseURL, header, apiKey string) *Probe {
	var rt http.RoundTripper = http.DefaultTransport
	if apiKey != "" {
		rt = &apiKeyRoundTripper{base: rt, header: header, key: apiKey}
	}
	return &Probe{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Transport: rt, Timeout: defaultTimeout},
	}
}

// Scrape fetches /metrics and builds a Report.
func (p *Probe) Scrape(ctx context.Context) (*Report, error) {
	mfs, err := fetchMetrics(ctx, p.client, p.base+"/metrics")
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", p.base, err)
	}

	r := &Report{
		ScrapedAt:       time.Now().UTC(),
		Sessions:        sumFamily(mfs[familySessions]),
		Offers:          sumFamily(mfs[familyOffers]),
		StreamClients:   sumFamily(mfs[familyStreamClients]),
		SessionsCreated: sumFamily(mfs[familySessionsCreated]),
		StakesSubmitted: sumFamily(mfs[familyStakesSubmitted]),
		AlertsFired:     sumFamily(mfs[familyAlertsFired]),
		Rejected:        make(map[string]float64),
	}
	if mf := mfs[familyStakesRejected]; mf != nil {
		for _, m := range mf.GetMetric() {
			r.Rejected[labelValue(m, "reason")] += m.GetCounter().GetValue()
		}
	}
	return r, nil
}

// apiKeyRoundTripper sets the admin API key header on every outgoing request.
type apiKeyRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *apiKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.key)
	return t.base.RoundTrip(req)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r. A partial result
// with a parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in mf. A missing
// family sums to 0.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
