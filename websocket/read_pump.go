// websocket/read_pump.go
package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// readPump вычитывает входящие кадры (нужно для обработки pong и закрытия) и снимает клиента с учета при отключении
func (c *Client) readPump(manager *Manager) {
	defer func() {
		// Отправляем сигнал отключения, если хаб еще работает
		select {
		case manager.unregister <- c:
		case <-manager.done:
		}

		// Безопасно закрываем соединение
		c.Socket.Close()
	}()

	// Устанавливаем параметры подключения
	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.logger.Warn("Ошибка чтения от клиента %s: %v", c.ID, err)
			}
			return
		}
	}
}
