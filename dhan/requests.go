package dhan

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	DhanClientID      string   `json:"dhanClientId"`
	CorrelationID     string   `json:"correlationId,omitempty"`
	TransactionType   string   `json:"transactionType"`
	ExchangeSegment   string   `json:"exchangeSegment"`
	ProductType       string   `json:"productType"`
	OrderType         string   `json:"orderType"`
	Validity          string   `json:"validity"`
	SecurityID        string   `json:"securityId"`
	Quantity          int      `json:"quantity"`
	DisclosedQuantity int      `json:"disclosedQuantity,omitempty"`
	Price             *float64 `json:"price,omitempty"`
	TriggerPrice      *float64 `json:"triggerPrice,omitempty"`
	AfterMarketOrder  bool     `json:"afterMarketOrder,omitempty"`
}

// ChartRequest is the body of POST /charts/historical.
type ChartRequest struct {
	SecurityID      string `json:"securityId"`
	ExchangeSegment string `json:"exchangeSegment"`
	Instrument      string `json:"instrument"`
	ExpiryCode      int    `json:"expiryCode"`
	OI              *bool  `json:"oi,omitempty"`
	FromDate        string `json:"fromDate"`
	ToDate          string `json:"toDate"`
}
