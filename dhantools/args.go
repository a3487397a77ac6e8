package dhantools

import (
	"encoding/json"

	"github.com/ggoodman/dhan-mcp/dhan"
)

type noArgs struct{}

type orderIDArgs struct {
	OrderID string `json:"order_id" jsonschema:"description=Dhan order id"`
}

type chartArgs struct {
	SecurityID      string `json:"security_id" jsonschema:"description=Dhan security id"`
	ExchangeSegment string `json:"exchange_segment" jsonschema:"description=Exchange segment such as NSE_EQ"`
	Instrument      string `json:"instrument" jsonschema:"enum=EQUITY,enum=FUTIDX,enum=FUTCOM,enum=FUTCUR,enum=OPTIDX,enum=OPTCUR,enum=OPTFUT,enum=OPTSTK,enum=INDEX"`
	ExpiryCode      int    `json:"expiry_code" jsonschema:"enum=0,enum=1,enum=2,enum=3"`
	FromDate        string `json:"from_date" jsonschema:"description=YYYY-MM-DD"`
	ToDate          string `json:"to_date" jsonschema:"description=YYYY-MM-DD"`
	OI              *bool  `json:"oi,omitempty" jsonschema:"description=Include open interest"`
}

func (a chartArgs) request() dhan.ChartRequest {
	return dhan.ChartRequest{
		SecurityID:      a.SecurityID,
		ExchangeSegment: a.ExchangeSegment,
		Instrument:      a.Instrument,
		ExpiryCode:      a.ExpiryCode,
		OI:              a.OI,
		FromDate:        a.FromDate,
		ToDate:          a.ToDate,
	}
}

type placeOrderArgs struct {
	ExchangeSegment string   `json:"dhan_exchange_segment" jsonschema:"description=Exchange segment such as NSE_EQ"`
	TransactionType string   `json:"transaction_type" jsonschema:"enum=BUY,enum=SELL"`
	ProductType     string   `json:"product_type" jsonschema:"enum=CNC,enum=INTRADAY,enum=MARGIN,enum=MTF"`
	OrderType       string   `json:"order_type" jsonschema:"enum=LIMIT,enum=MARKET,enum=SL,enum=SL-M"`
	Validity        string   `json:"validity,omitempty" jsonschema:"enum=DAY,enum=IOC,default=DAY"`
	SecurityID      string   `json:"security_id" jsonschema:"description=Dhan security id"`
	Quantity        int      `json:"quantity" jsonschema:"minimum=1"`
	Price           *float64 `json:"price,omitempty" jsonschema:"minimum=0"`
	TriggerPrice    *float64 `json:"trigger_price,omitempty" jsonschema:"minimum=0"`
}

func (a placeOrderArgs) request() dhan.OrderRequest {
	validity := a.Validity
	if validity == "" {
		validity = defaultValidity
	}
	return dhan.OrderRequest{
		TransactionType: a.TransactionType,
		ExchangeSegment: a.ExchangeSegment,
		ProductType:     a.ProductType,
		OrderType:       a.OrderType,
		Validity:        validity,
		SecurityID:      a.SecurityID,
		Quantity:        a.Quantity,
		Price:           a.Price,
		TriggerPrice:    a.TriggerPrice,
	}
}

type profileResult struct {
	OK      bool            `json:"ok"`
	Profile json.RawMessage `json:"profile"`
}

type fundsResult struct {
	OK    bool            `json:"ok"`
	Funds json.RawMessage `json:"funds"`
}

type positionsResult struct {
	OK        bool            `json:"ok"`
	Positions json.RawMessage `json:"positions"`
}

type holdingsResult struct {
	OK       bool            `json:"ok"`
	Holdings json.RawMessage `json:"holdings"`
}

type chartsResult struct {
	OK     bool            `json:"ok"`
	Charts json.RawMessage `json:"charts"`
}

type orderResult struct {
	OK      bool            `json:"ok"`
	OrderID string          `json:"order_id"`
	Order   json.RawMessage `json:"order"`
}

type placeOrderResult struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Order   json.RawMessage `json:"order"`
}

type cancelOrderResult struct {
	OK       bool            `json:"ok"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}
