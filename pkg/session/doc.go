// Package session управляет жизненным циклом RTC сессий на стороне клиента.
//
// Manager получает события сигнального транспорта (предложение, инициализация,
// завершение, отмена), выбирает обработчик по типу сессии и проводит каждую
// сессию через автомат состояний:
//
//	proposed -> accepted -> initializing -> active -> ending -> ended
//
// Состояние accepted может отсутствовать. В ending и ended можно перейти из
// любого незавершенного состояния, повторный переход в ended ничего не делает.
//
// # Обработчики
//
// Каждый тип сессии обслуживает свой Handler: SoftphoneHandler (звонки),
// ScreenShareHandler (демонстрация экрана гостем) и ScreenViewHandler
// (просмотр чужого экрана). Общее поведение вынесено в BaseHandler, который
// встраивается в конкретные обработчики. Предложение должно подходить ровно
// одному обработчику реестра, иначе возвращается ошибка NoMatchingHandler.
//
// # Ошибки
//
// Ошибки, возникшие при обработке событий транспорта, логируются и
// публикуются событием error, в транспорт они не возвращаются. Ошибки явных
// команд (Accept, Reject, End, StartSession) возвращаются вызывающему.
// Локальная очистка (остановка треков, удаление из карт) всегда выполняется
// до публикации ошибки.
//
// # Пример
//
//	mgr, err := session.NewManager(session.DefaultConfig(), session.Dependencies{
//	    Transport:     transport,
//	    Conversations: conversations,
//	    Logger:        logger,
//	})
//	if err != nil {
//	    return err
//	}
//	mgr.Start()
//	defer mgr.Close(context.Background())
//
//	ch, cancel := mgr.Subscribe()
//	defer cancel()
//	for ev := range ch {
//	    if ev.EventType == events.PendingSession {
//	        _ = mgr.Accept(ctx, ev.SessionID)
//	    }
//	}
package session
