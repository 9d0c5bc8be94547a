package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"perp-quoter/internal/exchange"

	"go.uber.org/zap"
)

// Client talks JSON-over-HTTP to the venue. Read-style queries go through
// POST /info, mutations through POST /exchange.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type infoRequest struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Asset  string `json:"asset,omitempty"`
}

type actionRequest struct {
	Type      string   `json:"type"`
	Symbol    string   `json:"symbol,omitempty"`
	Side      string   `json:"side,omitempty"`
	Price     float64  `json:"price,omitempty"`
	Size      float64  `json:"size,omitempty"`
	ClientID  uint64   `json:"clientId,omitempty"`
	ClientIDs []uint64 `json:"clientIds,omitempty"`
	Expiry    int64    `json:"expiry,omitempty"`
	Class     string   `json:"class,omitempty"`
}

type receiptResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type orderViewResponse struct {
	Symbol   string  `json:"symbol"`
	ClientID uint64  `json:"clientId"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Expiry   int64   `json:"expiry"`
}

type bookResponse struct {
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (exchange.Receipt, error) {
	return c.action(ctx, actionRequest{
		Type:     "place",
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Price:    req.Price,
		Size:     req.Size,
		ClientID: req.ClientID,
		Expiry:   req.Expiry,
		Class:    string(req.Class),
	})
}

func (c *Client) CancelOrder(ctx context.Context, req exchange.CancelRequest) (exchange.Receipt, error) {
	return c.action(ctx, actionRequest{
		Type:     "cancel",
		Symbol:   req.Symbol,
		ClientID: req.ClientID,
		Expiry:   req.Expiry,
		Class:    string(req.Class),
	})
}

func (c *Client) BatchCancel(ctx context.Context, symbol string, clientIDs []uint64, expiry int64) (exchange.Receipt, error) {
	return c.action(ctx, actionRequest{
		Type:      "batchCancel",
		Symbol:    symbol,
		ClientIDs: clientIDs,
		Expiry:    expiry,
	})
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]exchange.OrderView, error) {
	var views []orderViewResponse
	if err := c.post(ctx, "/info", infoRequest{Type: "openOrders", Symbol: symbol}, &views); err != nil {
		return nil, err
	}
	orders := make([]exchange.OrderView, 0, len(views))
	for _, v := range views {
		orders = append(orders, exchange.OrderView{
			Symbol:   v.Symbol,
			ClientID: v.ClientID,
			Side:     exchange.Side(v.Side),
			Price:    v.Price,
			Size:     v.Size,
			Expiry:   v.Expiry,
		})
	}
	return orders, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string) (exchange.Book, error) {
	var resp bookResponse
	if err := c.post(ctx, "/info", infoRequest{Type: "l2Book", Symbol: symbol}, &resp); err != nil {
		return exchange.Book{}, err
	}
	book := exchange.Book{Symbol: symbol, UpdatedAt: time.Now().UTC()}
	for _, lvl := range resp.Bids {
		book.Bids = append(book.Bids, exchange.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range resp.Asks {
		book.Asks = append(book.Asks, exchange.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	return book, nil
}

func (c *Client) ChainHeight(ctx context.Context) (int64, error) {
	var resp struct {
		Height int64 `json:"height"`
	}
	if err := c.post(ctx, "/info", infoRequest{Type: "chainHeight"}, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

func (c *Client) Position(ctx context.Context, symbol string) (exchange.Position, error) {
	var resp struct {
		Symbol        string  `json:"symbol"`
		Side          string  `json:"side"`
		Size          float64 `json:"size"`
		EntryPrice    float64 `json:"entryPrice"`
		UnrealizedPnl float64 `json:"unrealizedPnl"`
		RealizedPnl   float64 `json:"realizedPnl"`
	}
	if err := c.post(ctx, "/info", infoRequest{Type: "position", Symbol: symbol}, &resp); err != nil {
		return exchange.Position{}, err
	}
	return exchange.Position{
		Symbol:        resp.Symbol,
		Side:          exchange.Side(resp.Side),
		Size:          resp.Size,
		EntryPrice:    resp.EntryPrice,
		UnrealizedPnl: resp.UnrealizedPnl,
		RealizedPnl:   resp.RealizedPnl,
	}, nil
}

func (c *Client) Balance(ctx context.Context, asset string) (float64, error) {
	var resp struct {
		Balance float64 `json:"balance"`
	}
	if err := c.post(ctx, "/info", infoRequest{Type: "balance", Asset: asset}, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (c *Client) action(ctx context.Context, req actionRequest) (exchange.Receipt, error) {
	var resp receiptResponse
	if err := c.post(ctx, "/exchange", req, &resp); err != nil {
		return exchange.Receipt{}, err
	}
	if resp.Error != "" {
		return exchange.Receipt{}, fmt.Errorf("%s rejected: %s", req.Type, resp.Error)
	}
	return exchange.Receipt{OrderID: resp.OrderID, Status: resp.Status}, nil
}

func (c *Client) post(ctx context.Context, path string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
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
