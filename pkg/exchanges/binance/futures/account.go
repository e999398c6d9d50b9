package futures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"momentum-core/pkg/exchanges/common"
)

// SubmitOrder places an order and returns the venue ack.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	if req.Qty > 0 {
		params.Set("quantity", formatFloat(req.Qty))
	}

	if req.Type == common.OrderTypeStopMarket || req.Type == common.OrderTypeTakeProfitMarket {
		params.Set("stopPrice", formatFloat(req.StopPrice))
		if req.WorkingType != "" {
			params.Set("workingType", req.WorkingType)
		}
		if req.ClosePosition {
			params.Set("closePosition", "true")
		}
	}
	if req.Type == common.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("timeInForce", string(tif))
	}

	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	// Ask for the final state so market fills come back with a price.
	params.Set("newOrderRespType", "RESULT")

	body, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/order", c.signedParams(params))
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		Status:          common.OrderStatus(resp.Status),
		AvgPrice:        parseF(resp.AvgPrice),
		ExecutedQty:     parseF(resp.ExecutedQty),
	}, nil
}

// CancelAllOpenOrders cancels every open order for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	_, err := c.doSigned(ctx, http.MethodDelete, c.baseURL+"/fapi/v1/allOpenOrders", c.signedParams(params))
	return err
}

// GetOpenOrders returns resting orders; symbol optional.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v1/openOrders", c.signedParams(params))
	if err != nil {
		return nil, err
	}
	var orders []OpenOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	return orders, nil
}

// GetPositions returns the position risk view; symbol optional.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/positionRisk", c.signedParams(params))
	if err != nil {
		return nil, err
	}
	var pos []PositionRisk
	if err := json.Unmarshal(body, &pos); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return pos, nil
}

// GetBalance returns the available USDT balance.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/balance", c.signedParams(nil))
	if err != nil {
		return 0, err
	}
	var balances []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			return parseF(b.AvailableBalance), nil
		}
	}
	return 0, nil
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/leverage", c.signedParams(params))
	return err
}

// SetMarginType sets ISOLATED or CROSSED margin for a symbol. The venue
// answers with an error when the mode is already set; callers treat that
// as success.
func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("marginType", strings.ToUpper(marginType))
	_, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/marginType", c.signedParams(params))
	return err
}

// GetLeverageBrackets returns the maximum leverage per symbol.
func (c *Client) GetLeverageBrackets(ctx context.Context) (map[string]int, error) {
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v1/leverageBracket", c.signedParams(nil))
	if err != nil {
		return nil, err
	}
	var brackets []struct {
		Symbol   string `json:"symbol"`
		Brackets []struct {
			InitialLeverage int `json:"initialLeverage"`
		} `json:"brackets"`
	}
	if err := json.Unmarshal(body, &brackets); err != nil {
		return nil, fmt.Errorf("decode leverage brackets: %w", err)
	}
	out := make(map[string]int, len(brackets))
	for _, b := range brackets {
		max := 0
		for _, br := range b.Brackets {
			if br.InitialLeverage > max {
				max = br.InitialLeverage
			}
		}
		out[b.Symbol] = max
	}
	return out, nil
}
