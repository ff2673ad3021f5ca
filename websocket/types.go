// websocket/types.go
package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// RunNotice - уведомление о начале или завершении запуска
type RunNotice struct {
	RunID   int                `json:"run_id,omitempty"`
	Status  string             `json:"status"`
	Result  *load.UploadResult `json:"result,omitempty"`
	Message string             `json:"message,omitempty"`
}

// Структура сообщения для рассылки через WebSocket
type Message struct {
	Type     string              `json:"type"`
	Progress *load.ProgressEvent `json:"progress,omitempty"`
	Run      *RunNotice          `json:"run,omitempty"`
}

// Клиент WebSocket
type Client struct {
	ID     string
	Socket *websocket.Conn
	Send   chan []byte
}

// Manager - хаб WebSocket-соединений, рассылающий ход загрузки всем подписчикам
type Manager struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *utils.ETLLogger

	mu          sync.RWMutex
	clientCount int
	last        []byte
}

// Конфигурация WebSocket-соединения
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Разрешаем подключения с любого источника (панель мониторинга на другом порту)
	},
}
