package session

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"
)

// Address разобранный адрес удаленной стороны вида user@host/resource
type Address struct {
	User     string
	Host     string
	Resource string
	Raw      string
}

// ParseAddress разбирает адрес из предложения сессии.
// Суффикс экземпляра после "/" и домен отбрасываются в String.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, NewError(ErrorCodeInvalidArgument, "", "пустой адрес")
	}

	addr := Address{Raw: raw}
	bare := raw
	if at := strings.Index(bare, "@"); at >= 0 {
		if slash := strings.Index(bare[at:], "/"); slash >= 0 {
			addr.Resource = bare[at+slash+1:]
			bare = bare[:at+slash]
		}
	} else if slash := strings.Index(bare, "/"); slash >= 0 {
		addr.Resource = bare[slash+1:]
		bare = bare[:slash]
	}

	if !strings.Contains(bare, "@") {
		addr.User = bare
		return addr, nil
	}

	var uri sip.Uri
	if err := sip.ParseUri("sip:"+bare, &uri); err == nil && uri.User != "" {
		addr.User = uri.User
		addr.Host = uri.Host
		return addr, nil
	}

	// адрес не является корректным SIP URI, разбираем вручную
	at := strings.Index(bare, "@")
	addr.User = bare[:at]
	addr.Host = bare[at+1:]
	return addr, nil
}

// String пользовательская часть адреса
func (a Address) String() string {
	return a.User
}

// Bare адрес без суффикса экземпляра
func (a Address) Bare() string {
	if a.Host == "" {
		return a.User
	}
	return fmt.Sprintf("%s@%s", a.User, a.Host)
}

const (
	acdPrefix         = "acd-"
	screenSharePrefix = "sharescreen-"
)

// IsAcd адрес принадлежит ACD (гостевая демонстрация экрана)
func (a Address) IsAcd() bool {
	return strings.HasPrefix(a.User, acdPrefix)
}

// IsScreenView адрес принадлежит источнику демонстрации экрана для просмотра
func (a Address) IsScreenView() bool {
	return strings.HasPrefix(a.User, screenSharePrefix)
}
