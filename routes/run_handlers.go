// routes/run_handlers.go
package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/websocket"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// RunsResponse структура ответа API для списка запусков
type RunsResponse struct {
	Runs []models.RefreshRunLog `json:"runs"`
}

// StatusResponse структура ответа API состояния
type StatusResponse struct {
	Running     bool `json:"running"`
	Subscribers int  `json:"subscribers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON кодирует ответ и устанавливает заголовок JSON
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// GetRunsHandler возвращает последние запуски, новые первыми
func GetRunsHandler(repo models.RefreshLogRepository, logger *utils.ETLLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Проверяем параметр limit
		limit := defaultRunsLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 1 || parsed > maxRunsLimit {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "параметр limit должен быть числом от 1 до 100"})
				return
			}
			limit = parsed
		}

		runs, err := repo.GetRecentRuns(limit)
		if err != nil {
			logger.Error("Ошибка при получении журнала запусков: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ошибка при получении журнала запусков"})
			return
		}
		if runs == nil {
			runs = []models.RefreshRunLog{}
		}

		writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
	}
}

// GetLastRunHandler возвращает последний запуск или 404, если запусков не было
func GetLastRunHandler(repo models.RefreshLogRepository, logger *utils.ETLLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := repo.GetLastRun()
		if err != nil {
			logger.Error("Ошибка при получении последнего запуска: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ошибка при получении последнего запуска"})
			return
		}
		if run == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "запусков еще не было"})
			return
		}

		writeJSON(w, http.StatusOK, run)
	}
}

// TriggerRefreshHandler запускает обновление вне расписания; 409, если запуск уже идет
func TriggerRefreshHandler(trigger RefreshTrigger, logger *utils.ETLLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if trigger == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ручной запуск недоступен"})
			return
		}

		if !trigger.TriggerRefresh() {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "обновление уже выполняется"})
			return
		}

		logger.Info("Обновление запущено через API (%s)", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// GetStatusHandler возвращает состояние запуска и число подписчиков хода загрузки
func GetStatusHandler(trigger RefreshTrigger, progress *websocket.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status StatusResponse
		if trigger != nil {
			status.Running = trigger.Running()
		}
		if progress != nil {
			status.Subscribers = progress.ClientCount()
		}
		writeJSON(w, http.StatusOK, status)
	}
}
