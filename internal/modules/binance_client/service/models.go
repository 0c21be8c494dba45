package service

// Сырые ответы /dapi/v1. Числа Binance отдаёт строками.

type userTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	RealizedPnl     string `json:"realizedPnl"`
	MarginAsset     string `json:"marginAsset"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	PositionSide    string `json:"positionSide"`
}

type positionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	MarginType       string `json:"marginType"`
	IsolatedMargin   string `json:"isolatedMargin"`
	MarginAsset      string `json:"marginAsset"`
	PositionSide     string `json:"positionSide"`
}

type openOrder struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	StopPrice     string `json:"stopPrice"`
	Price         string `json:"price"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol       string  `json:"symbol"`
		ContractSize float64 `json:"contractSize"`
		MarginAsset  string  `json:"marginAsset"`
	} `json:"symbols"`
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// apiError: тело ошибки Binance, например {"code":-2015,"msg":"Invalid API-key"}.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
