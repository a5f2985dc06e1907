package broker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"slguard/pkg/utils"
)

// flexInt - int64, который шлюз присылает то строкой, то числом
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

type tradeFrame struct {
	DateTime time.Time `json:"dateTime"`
	Price    Quotation `json:"price"`
	Quantity flexInt   `json:"quantity"`
}

type orderTradesFrame struct {
	OrderID   string       `json:"orderId"`
	Direction string       `json:"direction"`
	Figi      string       `json:"figi"`
	AccountID string       `json:"accountId"`
	Trades    []tradeFrame `json:"trades"`
}

type securityFrame struct {
	Figi                 string      `json:"figi"`
	Balance              flexInt     `json:"balance"`
	Blocked              flexInt     `json:"blocked"`
	AveragePositionPrice *MoneyValue `json:"averagePositionPrice"`
	CurrentPrice         *MoneyValue `json:"currentPrice"`
}

type positionFrame struct {
	AccountID  string          `json:"accountId"`
	Securities []securityFrame `json:"securities"`
}

// streamFrame - одно сообщение WebSocket шлюза
type streamFrame struct {
	Result *struct {
		Ping             jsoniter.RawMessage `json:"ping"`
		Subscription     jsoniter.RawMessage `json:"subscription"`
		Subscriptions    jsoniter.RawMessage `json:"subscriptions"`
		InitialPositions jsoniter.RawMessage `json:"initialPositions"`
		OrderTrades      *orderTradesFrame   `json:"orderTrades"`
		Position         *positionFrame      `json:"position"`
	} `json:"result"`
	Error *apiError `json:"error"`
}

func (f *streamFrame) kind() string {
	switch {
	case f.Result == nil:
		return ""
	case len(f.Result.Ping) > 0:
		return MessagePing
	case len(f.Result.Subscription) > 0, len(f.Result.Subscriptions) > 0, len(f.Result.InitialPositions) > 0:
		return MessageSubscription
	default:
		return MessageData
	}
}

// toFillEvent переводит кадр сделок в событие. Количество у брокера в штуках.
func (o *orderTradesFrame) toFillEvent() *FillEvent {
	ev := &FillEvent{
		OrderID:   o.OrderID,
		AccountID: o.AccountID,
		Figi:      o.Figi,
		Direction: orderDirection(o.Direction),
		Fills:     make([]Fill, 0, len(o.Trades)),
	}
	for _, t := range o.Trades {
		ev.Fills = append(ev.Fills, Fill{
			Quantity:  int64(t.Quantity),
			Price:     t.Price.ToDecimal(),
			Timestamp: t.DateTime,
		})
	}
	return ev
}

func (p *positionFrame) toSnapshot() *BalanceSnapshot {
	s := &BalanceSnapshot{AccountID: p.AccountID, Securities: make([]SecurityBalance, 0, len(p.Securities))}
	for _, sec := range p.Securities {
		s.Securities = append(s.Securities, SecurityBalance{
			Figi:         sec.Figi,
			Balance:      int64(sec.Balance) + int64(sec.Blocked),
			AveragePrice: sec.AveragePositionPrice.ToDecimal(),
			CurrentPrice: sec.CurrentPrice.ToDecimal(),
		})
	}
	return s
}

type streamRequest struct {
	Accounts []string `json:"accounts"`
}

// SubscribeTrades - поток исполнений заявок счёта
func (c *InvestClient) SubscribeTrades(ctx context.Context, accountID string, onMessage func(TradeMessage)) error {
	return c.stream(ctx, "OrdersStreamService/TradesStream", streamRequest{Accounts: []string{accountID}}, func(f *streamFrame) {
		msg := TradeMessage{Kind: f.kind()}
		if msg.Kind == MessageData && f.Result.OrderTrades != nil {
			msg.Fill = f.Result.OrderTrades.toFillEvent()
		}
		onMessage(msg)
	})
}

// SubscribePositions - поток изменений позиций счёта
func (c *InvestClient) SubscribePositions(ctx context.Context, accountID string, onMessage func(PositionMessage)) error {
	return c.stream(ctx, "OperationsStreamService/PositionsStream", streamRequest{Accounts: []string{accountID}}, func(f *streamFrame) {
		msg := PositionMessage{Kind: f.kind()}
		if msg.Kind == MessageData && f.Result.Position != nil {
			msg.Snapshot = f.Result.Position.toSnapshot()
		}
		onMessage(msg)
	})
}

// stream держит одну WebSocket сессию: подключение, подписка, чтение до ошибки или отмены ctx
func (c *InvestClient) stream(ctx context.Context, method string, subscribe interface{}, handle func(*streamFrame)) error {
	log := c.logger.With(utils.String("method", method))

	url := strings.TrimRight(c.cfg.StreamURL, "/") + servicePrefix + method
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		be := &BrokerError{Op: method, Message: "dial: " + err.Error(), Original: err}
		if resp != nil {
			be.HTTPStatus = resp.StatusCode
		}
		return be
	}
	defer conn.Close()

	payload, err := json.Marshal(subscribe)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &BrokerError{Op: method, Message: "subscribe: " + err.Error(), Original: err}
	}
	log.Info("stream connected")

	// Чтение ограничено дедлайном, который продлевается каждым сообщением и pong
	readTimeout := c.cfg.PingInterval * 3
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingPump(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return &BrokerError{Op: method, Message: "read: " + err.Error(), Original: err}
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("malformed stream frame", utils.Err(err))
			continue
		}
		if frame.Error != nil {
			return &BrokerError{
				Op:      method,
				Code:    frame.Error.Description,
				Message: frame.Error.Message,
			}
		}
		handle(&frame)
	}
}

// pingPump отправляет ping и закрывает соединение при отмене ctx.
// WriteControl и Close безопасны параллельно с ReadMessage.
func (c *InvestClient) pingPump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PingInterval / 3)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("stream ping failed", utils.Err(err))
				}
				return
			}
		}
	}
}
