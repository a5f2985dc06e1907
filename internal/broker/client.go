package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"slguard/pkg/ratelimit"
	"slguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client - порт брокера, которым пользуется движок защиты.
//
// Подписки блокируют вызывающего до разрыва соединения или отмены ctx.
// Каждое полученное сообщение (включая ping и подтверждения подписки)
// передаётся в onMessage. Переподключение - забота вызывающего.
type Client interface {
	SubscribeTrades(ctx context.Context, accountID string, onMessage func(TradeMessage)) error
	SubscribePositions(ctx context.Context, accountID string, onMessage func(PositionMessage)) error

	GetPositions(ctx context.Context, accountID string) (*BalanceSnapshot, error)
	PlaceStopOrder(ctx context.Context, req StopOrderRequest) (string, error)
	CancelStopOrder(ctx context.Context, accountID, orderID string) error
	GetInstrument(ctx context.Context, figiOrTicker string) (*Instrument, error)
}

// Категории лимитов RPC
const (
	limitStopOrders  = "stop_orders"
	limitOperations  = "operations"
	limitInstruments = "instruments"
)

const servicePrefix = "/tinkoff.public.invest.api.contract.v1."

// Config - параметры подключения к брокеру
type Config struct {
	BaseURL      string
	StreamURL    string
	Token        string
	Timeout      time.Duration
	RPS          float64
	PingInterval time.Duration
	ClassCode    string // режим торгов для поиска по тикеру, по умолчанию TQBR
}

// InvestClient - реализация Client поверх REST шлюза (resty) и WebSocket шлюза (gorilla/websocket)
type InvestClient struct {
	rest    *resty.Client
	limiter *ratelimit.MultiLimiter
	dialer  *websocket.Dialer
	cfg     Config
	logger  *utils.Logger
}

// NewInvestClient создаёт клиент брокера
func NewInvestClient(cfg Config, logger *utils.Logger) *InvestClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ClassCode == "" {
		cfg.ClassCode = "TQBR"
	}
	if logger == nil {
		logger = utils.L()
	}

	transport := DefaultTransportConfig()
	transport.TotalTimeout = cfg.Timeout

	rest := resty.NewWithClient(NewHTTPClient(transport)).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(limitStopOrders, cfg.RPS, 0)
	limiter.Add(limitOperations, cfg.RPS, 0)
	limiter.Add(limitInstruments, cfg.RPS, 0)

	return &InvestClient{
		rest:    rest,
		limiter: limiter,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
			Subprotocols:     []string{"json"},
			Proxy:            http.ProxyFromEnvironment,
		},
		cfg:    cfg,
		logger: logger.WithComponent("broker"),
	}
}

// apiError - тело ошибки шлюза
type apiError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// call выполняет unary RPC: POST {base}/<service>/<method>
func (c *InvestClient) call(ctx context.Context, category, method string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx, category); err != nil {
		return err
	}

	start := time.Now()
	var apiErr apiError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(servicePrefix + method)
	if err != nil {
		return &BrokerError{Op: method, Message: err.Error(), Original: err}
	}

	c.logger.Debug("broker rpc",
		utils.String("method", method),
		utils.Int("status", resp.StatusCode()),
		utils.Latency(float64(time.Since(start).Microseconds())/1000),
	)

	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &BrokerError{
			Op:         method,
			HTTPStatus: resp.StatusCode(),
			Code:       apiErr.Description,
			Message:    msg,
		}
	}
	return nil
}

// ============================================================
// RPC
// ============================================================

type portfolioRequest struct {
	AccountID string `json:"accountId"`
}

type portfolioResponse struct {
	Positions []struct {
		Figi                 string      `json:"figi"`
		InstrumentType       string      `json:"instrumentType"`
		Quantity             Quotation   `json:"quantity"`
		AveragePositionPrice *MoneyValue `json:"averagePositionPrice"`
		CurrentPrice         *MoneyValue `json:"currentPrice"`
	} `json:"positions"`
}

// GetPositions возвращает портфель счёта как снимок балансов.
// Валютные позиции пропускаются.
func (c *InvestClient) GetPositions(ctx context.Context, accountID string) (*BalanceSnapshot, error) {
	var resp portfolioResponse
	if err := c.call(ctx, limitOperations, "OperationsService/GetPortfolio", portfolioRequest{AccountID: accountID}, &resp); err != nil {
		return nil, err
	}

	snapshot := &BalanceSnapshot{AccountID: accountID}
	for _, p := range resp.Positions {
		if p.InstrumentType == "currency" {
			continue
		}
		snapshot.Securities = append(snapshot.Securities, SecurityBalance{
			Figi:         p.Figi,
			Balance:      p.Quantity.ToDecimal().IntPart(),
			AveragePrice: p.AveragePositionPrice.ToDecimal(),
			CurrentPrice: p.CurrentPrice.ToDecimal(),
		})
	}
	return snapshot, nil
}

type postStopOrderRequest struct {
	Figi           string    `json:"figi"`
	Quantity       string    `json:"quantity"`
	Price          Quotation `json:"price"`
	StopPrice      Quotation `json:"stopPrice"`
	Direction      string    `json:"direction"`
	AccountID      string    `json:"accountId"`
	ExpirationType string    `json:"expirationType"`
	StopOrderType  string    `json:"stopOrderType"`
}

type postStopOrderResponse struct {
	StopOrderID string `json:"stopOrderId"`
}

// PlaceStopOrder выставляет стоп-заявку GOOD_TILL_CANCEL и возвращает её id
func (c *InvestClient) PlaceStopOrder(ctx context.Context, req StopOrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", fmt.Errorf("stop order quantity must be positive, got %d", req.Quantity)
	}

	direction := "STOP_ORDER_DIRECTION_BUY"
	if req.Direction == "SELL" {
		direction = "STOP_ORDER_DIRECTION_SELL"
	}

	body := postStopOrderRequest{
		Figi:           req.Figi,
		Quantity:       strconv.FormatInt(req.Quantity, 10),
		Price:          QuotationFromDecimal(req.Price),
		StopPrice:      QuotationFromDecimal(req.StopPrice),
		Direction:      direction,
		AccountID:      req.AccountID,
		ExpirationType: "STOP_ORDER_EXPIRATION_TYPE_GOOD_TILL_CANCEL",
		StopOrderType:  req.OrderType,
	}

	var resp postStopOrderResponse
	if err := c.call(ctx, limitStopOrders, "StopOrdersService/PostStopOrder", body, &resp); err != nil {
		return "", err
	}
	if resp.StopOrderID == "" {
		return "", &BrokerError{Op: "StopOrdersService/PostStopOrder", Message: "empty stop order id"}
	}
	return resp.StopOrderID, nil
}

type cancelStopOrderRequest struct {
	AccountID   string `json:"accountId"`
	StopOrderID string `json:"stopOrderId"`
}

// CancelStopOrder отменяет стоп-заявку
func (c *InvestClient) CancelStopOrder(ctx context.Context, accountID, orderID string) error {
	body := cancelStopOrderRequest{AccountID: accountID, StopOrderID: orderID}
	err := c.call(ctx, limitStopOrders, "StopOrdersService/CancelStopOrder", body, &struct{}{})
	var be *BrokerError
	if errors.As(err, &be) && (be.HTTPStatus == http.StatusNotFound || be.Code == codeStopOrderNotFound) {
		return fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	return err
}

type instrumentRequest struct {
	IDType    string `json:"idType"`
	ClassCode string `json:"classCode,omitempty"`
	ID        string `json:"id"`
}

type instrumentResponse struct {
	Instrument *struct {
		Figi                    string     `json:"figi"`
		Ticker                  string     `json:"ticker"`
		ClassCode               string     `json:"classCode"`
		Name                    string     `json:"name"`
		InstrumentType          string     `json:"instrumentType"`
		Lot                     int64      `json:"lot"`
		MinPriceIncrement       Quotation  `json:"minPriceIncrement"`
		MinPriceIncrementAmount *Quotation `json:"minPriceIncrementAmount"`
	} `json:"instrument"`
}

// коды ошибок шлюза
const (
	codeInstrumentNotFound = "50002"
	codeStopOrderNotFound  = "50006"
)

var figiPattern = regexp.MustCompile(`^[A-Z0-9]{12}$`)

// LooksLikeFigi - строка похожа на FIGI (12 символов, BBG/TCS префиксы и т.п.)
func LooksLikeFigi(s string) bool {
	return figiPattern.MatchString(s) && (strings.HasPrefix(s, "BBG") || strings.HasPrefix(s, "TCS") || strings.HasPrefix(s, "FUT"))
}

// GetInstrument ищет инструмент по FIGI или тикеру
func (c *InvestClient) GetInstrument(ctx context.Context, figiOrTicker string) (*Instrument, error) {
	req := instrumentRequest{IDType: "INSTRUMENT_ID_TYPE_FIGI", ID: figiOrTicker}
	if !LooksLikeFigi(figiOrTicker) {
		req = instrumentRequest{IDType: "INSTRUMENT_ID_TYPE_TICKER", ClassCode: c.cfg.ClassCode, ID: figiOrTicker}
	}

	var resp instrumentResponse
	err := c.call(ctx, limitInstruments, "InstrumentsService/GetInstrumentBy", req, &resp)
	if err != nil {
		if be, ok := err.(*BrokerError); ok && (be.HTTPStatus == http.StatusNotFound || be.Code == codeInstrumentNotFound) {
			return nil, fmt.Errorf("%s: %w", figiOrTicker, ErrInstrumentNotFound)
		}
		return nil, err
	}
	if resp.Instrument == nil {
		return nil, fmt.Errorf("%s: %w", figiOrTicker, ErrInstrumentNotFound)
	}

	in := resp.Instrument
	step := in.MinPriceIncrement.ToDecimal()
	stepPrice := step
	if !in.MinPriceIncrementAmount.IsZero() {
		stepPrice = in.MinPriceIncrementAmount.ToDecimal()
	}

	return &Instrument{
		Figi:           in.Figi,
		Ticker:         in.Ticker,
		ClassCode:      in.ClassCode,
		Name:           in.Name,
		InstrumentType: NormalizeInstrumentType(in.InstrumentType),
		Lot:            in.Lot,
		PriceStep:      step,
		StepPrice:      stepPrice,
	}, nil
}

// NormalizeInstrumentType: share -> stock, всё прочее -> futures
func NormalizeInstrumentType(brokerType string) string {
	if strings.HasPrefix(strings.ToLower(brokerType), "share") {
		return "stock"
	}
	return "futures"
}

// direction заявки из потока сделок
func orderDirection(s string) string {
	if strings.HasSuffix(s, "SELL") {
		return "SELL"
	}
	return "BUY"
}
