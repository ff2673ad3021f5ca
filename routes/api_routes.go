// routes/api_routes.go
package routes

import (
	"github.com/gorilla/mux"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/websocket"
)

// RefreshTrigger запускает обновление набора данных вне расписания
type RefreshTrigger interface {
	// TriggerRefresh запускает обновление в фоне; false, если запуск уже идет
	TriggerRefresh() bool

	// Running сообщает, идет ли сейчас запуск
	Running() bool
}

// Deps - зависимости API мониторинга
type Deps struct {
	Runs     models.RefreshLogRepository
	Trigger  RefreshTrigger
	Progress *websocket.Manager
	Logger   *utils.ETLLogger
}

// SetupRoutes настраивает все маршруты API и WebSocket
func SetupRoutes(router *mux.Router, deps Deps) {
	// Применяем CORS middleware
	router.Use(CORSMiddleware)

	// WebSocket хода загрузки
	if deps.Progress != nil {
		router.HandleFunc("/ws/progress", deps.Progress.HandleConnections)
	}

	// API журнала запусков
	router.HandleFunc("/api/runs", GetRunsHandler(deps.Runs, deps.Logger)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/runs/last", GetLastRunHandler(deps.Runs, deps.Logger)).Methods("GET", "OPTIONS")

	// API управления запуском
	router.HandleFunc("/api/refresh", TriggerRefreshHandler(deps.Trigger, deps.Logger)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/status", GetStatusHandler(deps.Trigger, deps.Progress)).Methods("GET", "OPTIONS")
}
