// websocket/connection_handler.go
package websocket

import (
	"net/http"

	"github.com/google/uuid"
)

// HandleConnections устанавливает WebSocket-соединение подписчика хода загрузки
func (manager *Manager) HandleConnections(w http.ResponseWriter, r *http.Request) {
	// Устанавливаем WebSocket-соединение
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		manager.logger.Warn("Ошибка при установке WebSocket-соединения: %v", err)
		return
	}

	// Создаем нового клиента
	client := &Client{
		ID:     uuid.NewString(),
		Socket: conn,
		Send:   make(chan []byte, sendBufferSize),
	}

	// Регистрируем клиента в менеджере
	select {
	case manager.register <- client:
	case <-manager.done:
		conn.Close()
		return
	}
	manager.logger.Info("Подписчик %s подключился с адреса %s", client.ID, r.RemoteAddr)

	// Запускаем горутины для чтения и отправки сообщений
	go client.readPump(manager)
	go client.writePump()
}
