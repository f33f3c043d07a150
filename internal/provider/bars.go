package provider

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kmatov/barcache/internal/model"
)

// barWire is the wire format for one bar.
type barWire struct {
	Ts     int64   `json:"ts"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type barsResponse struct {
	Bars []barWire `json:"bars"`
}

// FetchBars fetches bars for one request, starting at BeginPeriod. A nil
// slice means the provider has no new data for the series.
func (c *Client) FetchBars(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
	query := url.Values{}
	query.Set("symbol", req.Key.Symbol)
	query.Set("interval_len", strconv.Itoa(req.Key.IntervalLen))
	query.Set("interval_type", string(req.Key.IntervalType))
	query.Set("begin", strconv.FormatInt(req.BeginPeriod.Unix(), 10))

	var resp barsResponse
	if err := c.get(ctx, "/bars", query, &resp); err != nil {
		return nil, err
	}

	if len(resp.Bars) == 0 {
		return nil, nil
	}

	bars := make([]model.Bar, 0, len(resp.Bars))
	for _, w := range resp.Bars {
		bars = append(bars, model.Bar{
			Ts:     time.Unix(w.Ts, 0).UTC(),
			Open:   w.Open,
			High:   w.High,
			Low:    w.Low,
			Close:  w.Close,
			Volume: w.Volume,
		})
	}

	return bars, nil
}

// adjustmentWire is the wire format for one split/dividend event.
type adjustmentWire struct {
	Ts     int64   `json:"ts"` // unix seconds, midnight of the effective date
	Symbol string  `json:"symbol"`
	Kind   string  `json:"kind"`
	Value  float64 `json:"value"`
}

type adjustmentsResponse struct {
	Adjustments []adjustmentWire `json:"adjustments"`
}

// FetchAdjustments fetches split/dividend events for a symbol. The
// provider name is tagged onto each event for the adjustments table.
func (c *Client) FetchAdjustments(ctx context.Context, symbol, providerName string) ([]model.AdjustmentEvent, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var resp adjustmentsResponse
	if err := c.get(ctx, "/adjustments", query, &resp); err != nil {
		return nil, err
	}

	events := make([]model.AdjustmentEvent, 0, len(resp.Adjustments))
	for _, w := range resp.Adjustments {
		events = append(events, model.AdjustmentEvent{
			Ts:       time.Unix(w.Ts, 0).UTC(),
			Symbol:   w.Symbol,
			Kind:     model.AdjustmentKind(w.Kind),
			Value:    w.Value,
			Provider: providerName,
		})
	}

	return events, nil
}
