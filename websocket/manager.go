// websocket/manager.go
package websocket

import (
	"context"
	"encoding/json"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

var _ load.ProgressReporter = (*Manager)(nil)

// Создание нового менеджера WebSocket-соединений
func NewManager(logger *utils.ETLLogger) *Manager {
	return &Manager{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает регистрацию клиентов и рассылку до отмены ctx
func (manager *Manager) Run(ctx context.Context) {
	defer func() {
		close(manager.done)
		for client := range manager.clients {
			close(client.Send)
			delete(manager.clients, client)
		}
		manager.setClientCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-manager.register:
			manager.clients[client] = true
			manager.setClientCount(len(manager.clients))
			manager.logger.Debug("Клиент %s подключился к ходу загрузки", client.ID)

			// Новый клиент сразу получает последнее состояние
			if last := manager.lastMessage(); last != nil {
				manager.send(client, last)
			}

		case client := <-manager.unregister:
			if _, ok := manager.clients[client]; ok {
				delete(manager.clients, client)
				close(client.Send)
				manager.setClientCount(len(manager.clients))
				manager.logger.Debug("Клиент %s отключился", client.ID)
			}

		case message := <-manager.broadcast:
			// Рассылаем сообщение всем подключенным клиентам
			for client := range manager.clients {
				manager.send(client, message)
			}
		}
	}
}

// send ставит сообщение в очередь клиента; клиент, не успевающий читать, отключается
func (manager *Manager) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		close(client.Send)
		delete(manager.clients, client)
		manager.setClientCount(len(manager.clients))
		manager.logger.Warn("Клиент %s не успевает читать сообщения и отключен", client.ID)
	}
}

// Publish рассылает сообщение всем клиентам; при переполненной очереди сообщение отбрасывается
func (manager *Manager) Publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		manager.logger.Error("Ошибка сериализации сообщения %s: %v", msg.Type, err)
		return
	}

	manager.mu.Lock()
	manager.last = data
	manager.mu.Unlock()

	select {
	case manager.broadcast <- data:
	default:
		manager.logger.Warn("Очередь рассылки переполнена, сообщение %s отброшено", msg.Type)
	}
}

// ReportProgress публикует событие хода загрузки
func (manager *Manager) ReportProgress(event load.ProgressEvent) {
	manager.Publish(Message{Type: MessageTypeProgress, Progress: &event})
}

// ReportRun публикует уведомление о запуске
func (manager *Manager) ReportRun(notice RunNotice) {
	manager.Publish(Message{Type: MessageTypeRun, Run: &notice})
}

// ClientCount возвращает число подключенных клиентов
func (manager *Manager) ClientCount() int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.clientCount
}

func (manager *Manager) setClientCount(n int) {
	manager.mu.Lock()
	manager.clientCount = n
	manager.mu.Unlock()
}

func (manager *Manager) lastMessage() []byte {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.last
}
