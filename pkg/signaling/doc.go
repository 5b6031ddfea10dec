// Package signaling реализует транспорт сессий поверх websocket.
//
// Сервер и клиент обмениваются JSON кадрами (Frame). Входящие кадры propose,
// session-initiate, terminated, cancel, handled, error и trace передаются
// подписчику session.TransportHandlers. Команды менеджера сессий (accept,
// reject, initiate, session-accept, session-terminate) отправляются теми же
// кадрами. RTP пакеты передаются бинарными кадрами с префиксом id сессии и
// индексом трека.
//
//	t := signaling.New(signaling.Config{URL: "wss://streaming.example.com", AccessToken: token})
//	if err := t.Connect(ctx); err != nil {
//		return err
//	}
//	defer t.Disconnect(ctx)
package signaling
