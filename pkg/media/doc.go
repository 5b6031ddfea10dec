// Package media описывает локальные и удаленные медиа потоки SDK.
//
// Пакет не кодирует и не декодирует аудио. Он моделирует то, чем оперирует
// менеджер сессий: треки (Track) с RTP пакетами, потоки (Stream) как
// упорядоченные наборы треков, и приемники удаленного медиа (Element),
// которые получают пакеты через PacketWriter.
//
// # Жизненный цикл трека
//
// Трек создается живым и завершается ровно один раз через Stop. Слушатели
// OnEnded вызываются один раз после завершения, вне внутренних блокировок.
// Запись в завершенный трек возвращает ошибку с кодом ErrorCodeTrackEnded.
//
// # Приемники
//
// Sinks хранит элементы по маркеру. Acquire возвращает явно заданный элемент
// или единственный элемент с маркером InboundMarker, создавая его при первом
// обращении:
//
//	sinks := media.NewSinks(media.SinksOptions{})
//	el := sinks.Acquire(nil)
//	if err := sinks.Attach(el, remoteStream); err != nil {
//	    return err
//	}
//	defer sinks.Detach(el)
//
// Attach запускает пересылку RTP пакетов всех треков потока в выход элемента
// до вызова Detach или завершения треков.
package media
