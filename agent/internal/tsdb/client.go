package tsdb

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/dsa110/mnc/agent/internal/config"
)

// maxBody bounds how much of a response is read.
const maxBody = 64 << 20

// Client queries an InfluxDB 1.x server.
type Client struct {
	base     string
	database string
	http     *http.Client
}

// New builds a Client from the influx section of the config.
func New(cfg config.InfluxConfig) (*Client, error) {
	hc, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("tsdb: build http client: %w", err)
	}
	return &Client{
		base:     strings.TrimRight(cfg.Endpoint, "/"),
		database: cfg.Database,
		http:     hc,
	}, nil
}

// influxResponse is the /query response body.
type influxResponse struct {
	Results []struct {
		StatementID int `json:"statement_id"`
		Series      []struct {
			Name    string            `json:"name"`
			Tags    map[string]string `json:"tags"`
			Columns []string          `json:"columns"`
			Values  [][]any           `json:"values"`
		} `json:"series"`
		Error string `json:"error"`
	} `json:"results"`
	Error string `json:"error"`
}

// Query runs q and returns its series keyed by measurement name. Grouped
// series of the same measurement are merged into one table, with the group
// tags appended as columns.
func (c *Client) Query(ctx context.Context, q Query) (Result, error) {
	params := url.Values{}
	params.Set("db", c.database)
	params.Set("q", q.InfluxQL())
	params.Set("epoch", "ms")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tsdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tsdb: query %s: %w", q.Measurement, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("tsdb: read %s response: %w", q.Measurement, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tsdb: query %s: unexpected status %d: %s",
			q.Measurement, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ir influxResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, fmt.Errorf("tsdb: decode %s response: %w", q.Measurement, err)
	}
	if ir.Error != "" {
		return nil, fmt.Errorf("tsdb: query %s: %s", q.Measurement, ir.Error)
	}

	out := Result{}
	for _, r := range ir.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("tsdb: query %s: %s", q.Measurement, r.Error)
		}
		for _, s := range r.Series {
			tagNames := sortedKeys(s.Tags)
			cols := append(append([]string(nil), s.Columns...), tagNames...)
			t, ok := out[s.Name]
			if !ok {
				t = &Table{Name: s.Name, Columns: cols}
				out[s.Name] = t
			}
			for _, row := range s.Values {
				full := append([]any(nil), row...)
				for _, tn := range tagNames {
					full = append(full, s.Tags[tn])
				}
				t.Values = append(t.Values, full)
			}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/ping", nil)
	if err != nil {
		return fmt.Errorf("tsdb: build ping: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tsdb: ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// authRoundTripper injects authentication into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the auth and TLS settings.
func buildHTTPClient(cfg config.InfluxConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: cfg.Timeout,
	}, nil
}
