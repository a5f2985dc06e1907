package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slguard/internal/api/handlers"
	"slguard/internal/api/middleware"
	"slguard/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Positions *handlers.PositionHandler
	Events    *handlers.EventHandler
	Trades    *handlers.TradeHandler
	Levels    *handlers.LevelsHandler
	Status    *handlers.StatusHandler

	// WebSocket поток алертов и позиций, может быть nil
	Stream http.HandlerFunc

	// bcrypt хэш токена API, пусто - без авторизации
	TokenHash string
	// проверка Origin для CORS
	AllowOrigin func(origin string) bool

	Logger *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
//	/health - GET, без авторизации
//	/metrics - GET, Prometheus
//	/api/v1/
//	├── GET /status - потоки, позиции, отложенные активации
//	├── GET /positions - позиции с активными SL/TP
//	├── GET /positions/{figi} - позиция, лестница, PnL по ?price=
//	├── GET /positions/{figi}/trades - исполнения по инструменту
//	├── GET /orders - последние защитные ордера
//	├── GET /orders/{orderId} - ордер по id брокера
//	├── GET /events - журнал аудита
//	├── GET /levels - предпросмотр уровней
//	└── GET /settings/{ticker} - эффективные настройки
//	/ws/alerts - WebSocket алертов и изменений позиций
//
// Middleware: Recovery, Logging, CORS для всех маршрутов;
// TokenAuth для /api/v1 и /ws.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = utils.L()
	}

	allowOrigin := deps.AllowOrigin
	if allowOrigin == nil {
		allowOrigin = func(string) bool { return true }
	}

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(allowOrigin))

	auth := middleware.TokenAuth(deps.TokenHash)

	// OPTIONS нужен маршруту, чтобы preflight дошёл до CORS раньше авторизации
	get := []string{http.MethodGet, http.MethodOptions}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	if deps.Status != nil {
		router.HandleFunc("/health", deps.Status.Health).Methods(get...)
		api.HandleFunc("/status", deps.Status.GetStatus).Methods(get...)
	}

	if deps.Positions != nil {
		api.HandleFunc("/positions", deps.Positions.GetPositions).Methods(get...)
		api.HandleFunc("/positions/{figi}", deps.Positions.GetPosition).Methods(get...)
		api.HandleFunc("/orders", deps.Positions.GetOrders).Methods(get...)
		api.HandleFunc("/orders/{orderId}", deps.Positions.GetOrder).Methods(get...)
	}

	if deps.Trades != nil {
		api.HandleFunc("/positions/{figi}/trades", deps.Trades.GetTrades).Methods(get...)
	}

	if deps.Events != nil {
		api.HandleFunc("/events", deps.Events.GetEvents).Methods(get...)
	}

	if deps.Levels != nil {
		api.HandleFunc("/levels", deps.Levels.GetLevels).Methods(get...)
		api.HandleFunc("/settings/{ticker}", deps.Levels.GetSettings).Methods(get...)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(get...)

	if deps.Stream != nil {
		router.Handle("/ws/alerts", auth(deps.Stream)).Methods(get...)
	}

	return router
}
