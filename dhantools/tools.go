// Package dhantools exposes the Dhan client as MCP tools.
package dhantools

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ggoodman/dhan-mcp/dhan"
	"github.com/ggoodman/dhan-mcp/internal/validation"
	"github.com/ggoodman/dhan-mcp/mcp"
	"github.com/ggoodman/dhan-mcp/mcpservice"
)

// DefaultMaxOrderQuantity caps place_order quantities unless configured.
const DefaultMaxOrderQuantity = 10000

const (
	placeDisabledMessage  = "Trading tools are disabled. Set ENABLE_TRADING_TOOLS=true to allow order placement."
	cancelDisabledMessage = "Trading tools are disabled. Set ENABLE_TRADING_TOOLS=true to allow cancellation."
)

var (
	instruments     = []any{"EQUITY", "FUTIDX", "FUTCOM", "FUTCUR", "OPTIDX", "OPTCUR", "OPTFUT", "OPTSTK", "INDEX"}
	expiryCodes     = []any{0, 1, 2, 3}
	sides           = []any{"BUY", "SELL"}
	productTypes    = []any{"CNC", "INTRADAY", "MARGIN", "MTF"}
	orderTypes      = []any{"LIMIT", "MARKET", "SL", "SL-M"}
	validities      = []any{"DAY", "IOC"}
	defaultValidity = "DAY"
)

// Broker is the subset of *dhan.Client the tools call.
type Broker interface {
	Profile(ctx context.Context) (json.RawMessage, error)
	Funds(ctx context.Context) (json.RawMessage, error)
	Positions(ctx context.Context) (json.RawMessage, error)
	Holdings(ctx context.Context) (json.RawMessage, error)
	OrderByID(ctx context.Context, orderID string) (json.RawMessage, error)
	PlaceOrder(ctx context.Context, req dhan.OrderRequest) (json.RawMessage, error)
	CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	HistoricalCharts(ctx context.Context, req dhan.ChartRequest) (json.RawMessage, error)
}

// Policy holds the startup switches that constrain trading tools.
type Policy struct {
	TradingEnabled   bool
	MaxOrderQuantity int
}

// NewRegistry builds the registry of all Dhan tools.
func NewRegistry(b Broker, p Policy) (*mcpservice.Registry, error) {
	return mcpservice.NewRegistry(Build(b, p)...)
}

// Build returns the Dhan tools in listing order.
func Build(b Broker, p Policy) []mcpservice.Tool {
	maxQty := p.MaxOrderQuantity
	if maxQty <= 0 {
		maxQty = DefaultMaxOrderQuantity
	}

	return []mcpservice.Tool{
		mcpservice.NewTool[noArgs]("get_profile",
			func(ctx context.Context, _ noArgs) mcpservice.Outcome {
				raw, err := b.Profile(ctx)
				return result(err, func() any { return profileResult{OK: true, Profile: raw} })
			},
			mcpservice.WithToolDescription("Fetch Dhan account profile details."),
		),
		mcpservice.NewTool[noArgs]("get_funds",
			func(ctx context.Context, _ noArgs) mcpservice.Outcome {
				raw, err := b.Funds(ctx)
				return result(err, func() any { return fundsResult{OK: true, Funds: raw} })
			},
			mcpservice.WithToolDescription("Fetch Dhan funds/limits."),
		),
		mcpservice.NewTool[noArgs]("get_positions",
			func(ctx context.Context, _ noArgs) mcpservice.Outcome {
				raw, err := b.Positions(ctx)
				return result(err, func() any { return positionsResult{OK: true, Positions: raw} })
			},
			mcpservice.WithToolDescription("Fetch open and closed positions."),
		),
		mcpservice.NewTool[noArgs]("get_holdings",
			func(ctx context.Context, _ noArgs) mcpservice.Outcome {
				raw, err := b.Holdings(ctx)
				return result(err, func() any { return holdingsResult{OK: true, Holdings: raw} })
			},
			mcpservice.WithToolDescription("Fetch demat holdings."),
		),
		mcpservice.NewTool[chartArgs]("get_historical_charts",
			func(ctx context.Context, a chartArgs) mcpservice.Outcome {
				raw, err := b.HistoricalCharts(ctx, a.request())
				return result(err, func() any { return chartsResult{OK: true, Charts: raw} })
			},
			mcpservice.WithToolDescription("Fetch historical candle chart data from Dhan historical charts API."),
			mcpservice.WithToolValidator(validation.Object(
				validation.Required("security_id", validation.NonEmptyString),
				validation.Required("exchange_segment", validation.NonEmptyString),
				validation.Required("instrument", validation.OneOf(instruments...)),
				validation.Required("expiry_code", validation.OneOf(expiryCodes...)),
				validation.Required("from_date", validation.Date),
				validation.Required("to_date", validation.Date),
				validation.Optional("oi", validation.Boolean),
			)),
		),
		mcpservice.NewTool[orderIDArgs]("get_order_by_id",
			func(ctx context.Context, a orderIDArgs) mcpservice.Outcome {
				raw, err := b.OrderByID(ctx, a.OrderID)
				return result(err, func() any { return orderResult{OK: true, OrderID: a.OrderID, Order: raw} })
			},
			mcpservice.WithToolDescription("Fetch a specific order by order_id."),
			mcpservice.WithToolValidator(validation.Object(
				validation.Required("order_id", validation.NonEmptyString),
			)),
		),
		mcpservice.NewTool[placeOrderArgs]("place_order",
			func(ctx context.Context, a placeOrderArgs) mcpservice.Outcome {
				raw, err := b.PlaceOrder(ctx, a.request())
				return result(err, func() any {
					return placeOrderResult{OK: true, Message: "Order placed successfully", Order: raw}
				})
			},
			mcpservice.WithToolDescription("Place a Dhan order. Disabled unless ENABLE_TRADING_TOOLS=true."),
			mcpservice.WithToolGate(mcpservice.PolicyGate(p.TradingEnabled, placeDisabledMessage)),
			mcpservice.WithToolValidator(validation.Object(
				validation.Required("dhan_exchange_segment", validation.NonEmptyString),
				validation.Required("transaction_type", validation.OneOf(sides...)),
				validation.Required("product_type", validation.OneOf(productTypes...)),
				validation.Required("order_type", validation.OneOf(orderTypes...)),
				validation.Default("validity", defaultValidity, validation.OneOf(validities...)),
				validation.Required("security_id", validation.NonEmptyString),
				validation.Required("quantity", validation.PositiveInt(maxQty)),
				validation.Optional("price", validation.NonNegativeNumber),
				validation.Optional("trigger_price", validation.NonNegativeNumber),
			)),
			mcpservice.WithSchemaProperty("quantity", func(sp *mcp.SchemaProperty) {
				sp.Maximum = json.Number(strconv.Itoa(maxQty))
			}),
		),
		mcpservice.NewTool[orderIDArgs]("cancel_order",
			func(ctx context.Context, a orderIDArgs) mcpservice.Outcome {
				raw, err := b.CancelOrder(ctx, a.OrderID)
				return result(err, func() any {
					return cancelOrderResult{OK: true, Message: "Order " + a.OrderID + " cancelled successfully", Response: raw}
				})
			},
			mcpservice.WithToolDescription("Cancel an existing order. Disabled unless ENABLE_TRADING_TOOLS=true."),
			mcpservice.WithToolGate(mcpservice.PolicyGate(p.TradingEnabled, cancelDisabledMessage)),
			mcpservice.WithToolValidator(validation.Object(
				validation.Required("order_id", validation.NonEmptyString),
			)),
		),
	}
}

// result converts a broker call into an Outcome. Broker-reported failures
// become domain failures carrying the status and payload.
func result(err error, ok func() any) mcpservice.Outcome {
	if err == nil {
		return mcpservice.OK(ok())
	}
	var apiErr *dhan.APIError
	if errors.As(err, &apiErr) {
		return mcpservice.DomainFailure(apiErr.Status, apiErr.Payload, apiErr.Message)
	}
	return mcpservice.InternalFailure(err)
}
