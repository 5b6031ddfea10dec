// Package sdk собирает сигнальный канал, менеджер сессий и шину событий в один клиент.
//
//	cfg, err := sdk.Load("rtc.yaml")
//	if err != nil {
//		return err
//	}
//	client, err := sdk.NewClient(*cfg, sdk.Options{})
//	if err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	ch, cancel := client.SubscribeTypes(events.PendingSession)
//	defer cancel()
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	for ev := range ch {
//		_ = client.AcceptPendingSession(ctx, ev.SessionID)
//	}
package sdk
