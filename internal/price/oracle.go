package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BinanceProvider reads spot ticker prices from a Binance-compatible REST
// endpoint. Symbols map 1:1 onto venue tickers via the configured aliases.
type BinanceProvider struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	aliases map[string]string
}

func NewBinanceProvider(baseURL string, timeout, ttl time.Duration, aliases map[string]string) *BinanceProvider {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &BinanceProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		ttl:     ttl,
		aliases: aliases,
	}
}

func (p *BinanceProvider) Name() string       { return "binance" }
func (p *BinanceProvider) TTL() time.Duration { return p.ttl }

func (p *BinanceProvider) Fetch(ctx context.Context, symbol string) (float64, error) {
	endpoint := p.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(p.alias(symbol))
	var resp struct {
		Price string `json:"price"`
	}
	if err := getJSON(ctx, p.http, endpoint, &resp); err != nil {
		return 0, err
	}
	px, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse binance price %q: %w", resp.Price, err)
	}
	return px, nil
}

func (p *BinanceProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	quoted := make([]string, 0, len(symbols))
	reverse := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		alias := p.alias(sym)
		quoted = append(quoted, `"`+alias+`"`)
		reverse[alias] = sym
	}
	endpoint := p.baseURL + "/api/v3/ticker/price?symbols=" + url.QueryEscape("["+strings.Join(quoted, ",")+"]")
	var resp []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := getJSON(ctx, p.http, endpoint, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp))
	for _, item := range resp {
		sym, ok := reverse[item.Symbol]
		if !ok {
			continue
		}
		if px, err := strconv.ParseFloat(item.Price, 64); err == nil {
			out[sym] = px
		}
	}
	return out, nil
}

func (p *BinanceProvider) alias(symbol string) string {
	if alias, ok := p.aliases[symbol]; ok {
		return alias
	}
	return symbol
}

// CoinGeckoProvider resolves USD prices via the simple-price endpoint.
// CoinGecko keys by coin ID, so symbols must be mapped through ids.
type CoinGeckoProvider struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	ids     map[string]string
}

func NewCoinGeckoProvider(baseURL string, timeout, ttl time.Duration, ids map[string]string) *CoinGeckoProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CoinGeckoProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		ttl:     ttl,
		ids:     ids,
	}
}

func (p *CoinGeckoProvider) Name() string       { return "coingecko" }
func (p *CoinGeckoProvider) TTL() time.Duration { return p.ttl }

func (p *CoinGeckoProvider) Fetch(ctx context.Context, symbol string) (float64, error) {
	prices, err := p.FetchBatch(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	px, ok := prices[symbol]
	if !ok {
		return 0, ErrUnavailable
	}
	return px, nil
}

func (p *CoinGeckoProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	ids := make([]string, 0, len(symbols))
	reverse := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		id, ok := p.ids[sym]
		if !ok {
			continue
		}
		ids = append(ids, id)
		reverse[id] = sym
	}
	if len(ids) == 0 {
		return nil, ErrUnavailable
	}
	endpoint := p.baseURL + "/api/v3/simple/price?vs_currencies=usd&ids=" + url.QueryEscape(strings.Join(ids, ","))
	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := getJSON(ctx, p.http, endpoint, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp))
	for id, entry := range resp {
		if sym, ok := reverse[id]; ok && entry.USD > 0 {
			out[sym] = entry.USD
		}
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
