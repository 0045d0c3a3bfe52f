package proxymgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/openparcel/openparcel/models"
)

// Provider fetches a batch of proxy candidates from one named, hosted
// proxy-list service. Grounded on `openparcel/proxies.py`'s ProxyList
// subclasses (PubProxy, Proxifly, OpenProxySpace): each provider knows
// its own request shape and response JSON schema, and Fetch returns raw
// candidates for the caller to duplicate-check, test, and save — unlike
// the original's ProxyList.append(), which interleaves fetch/test/save
// per item, Fetch here only does the HTTP half so the Manager can apply
// the test-before-save policy uniformly across providers.
type Provider interface {
	Fetch(ctx context.Context) ([]*models.Proxy, error)
}

// providerFactories is the explicit, reflection-free provider registry.
// The original discovers providers via inspect.getmembers over its
// module; per this repo's "no runtime reflection" convention (see
// carrier.Registry), providers are instead registered into this static
// table, the same shape carriers are registered into carrier.registry.
var providerFactories = map[string]func(apiKey string) Provider{
	"pubproxy":       func(key string) Provider { return &pubProxyProvider{apiKey: key} },
	"proxifly":       func(key string) Provider { return &proxiflyProvider{apiKey: key, quantity: 5} },
	"openproxyspace": func(key string) Provider { return &openProxySpaceProvider{apiKey: key, quantity: 5} },
}

// ProviderNames lists every registered provider, sorted, for CLI help
// text and for resolving "all configured providers" when none are named
// explicitly on the command line.
func ProviderNames() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the named provider bound to apiKey (empty if the
// provider doesn't require or has none configured), or (nil, false) if
// name isn't a registered provider.
func NewProvider(name, apiKey string) (Provider, bool) {
	factory, ok := providerFactories[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return factory(apiKey), true
}

func getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider request failed with HTTP status code %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(ctx context.Context, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider request failed with HTTP status code %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// pubProxyProvider fetches from http://pubproxy.com/api/proxy, grounded
// on PubProxy in openparcel/proxies.py: one request per protocol
// (http/socks4/socks5), `format=json`, `last_check=30`, a higher result
// limit once an API key is configured.
type pubProxyProvider struct{ apiKey string }

func (p *pubProxyProvider) Fetch(ctx context.Context) ([]*models.Proxy, error) {
	limit := 5
	if p.apiKey != "" {
		limit = 20
	}

	var out []*models.Proxy
	for _, proto := range []models.ProxyProtocol{models.ProxyHTTP, models.ProxySocks4, models.ProxySocks5} {
		url := fmt.Sprintf("http://pubproxy.com/api/proxy?format=json&last_check=30&limit=%d"+
			"&https=true&post=true&user_agent=true&cookies=true&referer=true&type=%s", limit, proto)
		if p.apiKey != "" {
			url += "&api=" + p.apiKey
		}

		var resp struct {
			Data []struct {
				IP      string `json:"ip"`
				Port    string `json:"port"`
				Country string `json:"country"`
				Speed   string `json:"speed"`
				Type    string `json:"type"`
			} `json:"data"`
		}
		if err := getJSON(ctx, url, nil, &resp); err != nil {
			return nil, fmt.Errorf("pubproxy: %w", err)
		}
		for _, item := range resp.Data {
			out = append(out, &models.Proxy{
				Address:  item.IP,
				Port:     atoiSafe(item.Port),
				Country:  item.Country,
				SpeedMs:  int64(atoiSafe(item.Speed)) * 1000,
				Protocol: models.ProxyProtocol(item.Type),
			})
		}
	}
	return out, nil
}

// proxiflyProvider fetches from https://api.proxifly.dev/get-proxy,
// grounded on Proxifly in openparcel/proxies.py: a single POST with a
// JSON options body requesting all three protocols.
type proxiflyProvider struct {
	apiKey   string
	quantity int
}

func (p *proxiflyProvider) Fetch(ctx context.Context) ([]*models.Proxy, error) {
	body := map[string]any{
		"format":   "json",
		"protocol": []string{"http", "socks4", "socks5"},
		"quantity": p.quantity,
		"https":    true,
		"speed":    10000,
	}
	if p.apiKey != "" {
		body["apiKey"] = p.apiKey
	}

	var resp []struct {
		IP           string `json:"ip"`
		Port         int    `json:"port"`
		Geolocation  struct {
			Country string `json:"country"`
		} `json:"geolocation"`
		Score    int    `json:"score"`
		Protocol string `json:"protocol"`
	}
	if err := postJSON(ctx, "https://api.proxifly.dev/get-proxy", body, &resp); err != nil {
		return nil, fmt.Errorf("proxifly: %w", err)
	}

	out := make([]*models.Proxy, 0, len(resp))
	for _, item := range resp {
		out = append(out, &models.Proxy{
			Address:  item.IP,
			Port:     item.Port,
			Country:  item.Geolocation.Country,
			SpeedMs:  int64(item.Score) * 1000,
			Protocol: models.ProxyProtocol(item.Protocol),
		})
	}
	return out, nil
}

// openProxySpaceProvider fetches from https://api.openproxy.space,
// grounded on OpenProxySpace in openparcel/proxies.py: each returned
// item lists the protocol indices (1=http, 2=socks4, 3=socks5) it
// supports, so one API item can yield several candidates.
type openProxySpaceProvider struct {
	apiKey   string
	quantity int
}

func (p *openProxySpaceProvider) protoFromIndex(index int) (models.ProxyProtocol, bool) {
	switch index {
	case 1:
		return models.ProxyHTTP, true
	case 2:
		return models.ProxySocks4, true
	case 3:
		return models.ProxySocks5, true
	default:
		return "", false
	}
}

func (p *openProxySpaceProvider) Fetch(ctx context.Context) ([]*models.Proxy, error) {
	url := fmt.Sprintf("https://api.openproxy.space/premium/json?apiKey=%s&amount=%d"+
		"&smart=1&stableAverage=0&status=1&uptime=99", p.apiKey, p.quantity)

	var resp []struct {
		IP        string `json:"ip"`
		Port      int    `json:"port"`
		Country   string `json:"country"`
		Timeout   int64  `json:"timeout"`
		Protocols []int  `json:"protocols"`
	}
	if err := getJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("openproxyspace: %w", err)
	}

	var out []*models.Proxy
	for _, item := range resp {
		for _, idx := range item.Protocols {
			proto, ok := p.protoFromIndex(idx)
			if !ok {
				continue
			}
			out = append(out, &models.Proxy{
				Address:  item.IP,
				Port:     item.Port,
				Country:  item.Country,
				SpeedMs:  item.Timeout,
				Protocol: proto,
			})
		}
	}
	return out, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
