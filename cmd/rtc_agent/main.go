// rtc_agent подключается к сигнальному каналу и обслуживает RTC сессии
// с синтетическим медиа. Используется для проверки окружения и конфигурации.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
