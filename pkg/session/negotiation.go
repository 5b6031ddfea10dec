package session

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/sdp/v3"
)

// Direction направление медиа в SDP
type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// Receives true, если удаленная сторона готова принимать медиа
func (d Direction) Receives() bool {
	return d == DirectionSendRecv || d == DirectionRecvOnly
}

// Sends true, если удаленная сторона отправляет медиа
func (d Direction) Sends() bool {
	return d == DirectionSendRecv || d == DirectionSendOnly
}

// Fingerprint DTLS отпечаток из a=fingerprint
type Fingerprint struct {
	Algorithm string
	Value     string
}

// Offer итог разбора удаленного SDP предложения
type Offer struct {
	Audio          bool
	Video          bool
	AudioDirection Direction
	VideoDirection Direction
	Fingerprint    *Fingerprint
}

// InspectOffer извлекает из SDP типы медиа, направления и отпечаток DTLS.
// Отклоненные m-строки (порт 0) не учитываются.
func InspectOffer(desc *sdp.SessionDescription) (Offer, error) {
	var offer Offer
	if desc == nil {
		return offer, NewError(ErrorCodeNegotiationFailure, "", "нет удаленного SDP предложения")
	}

	sessionDirection := directionOf(desc.Attributes, DirectionSendRecv)

	if value, ok := desc.Attribute("fingerprint"); ok {
		fp, err := parseFingerprint(value)
		if err != nil {
			return offer, err
		}
		offer.Fingerprint = fp
	}

	for _, md := range desc.MediaDescriptions {
		if md == nil || md.MediaName.Port.Value == 0 {
			continue
		}
		direction := directionOf(md.Attributes, sessionDirection)

		if offer.Fingerprint == nil {
			if value, ok := md.Attribute("fingerprint"); ok {
				fp, err := parseFingerprint(value)
				if err != nil {
					return offer, err
				}
				offer.Fingerprint = fp
			}
		}

		switch md.MediaName.Media {
		case "audio":
			if !offer.Audio {
				offer.Audio = true
				offer.AudioDirection = direction
			}
		case "video":
			if !offer.Video {
				offer.Video = true
				offer.VideoDirection = direction
			}
		}
	}
	return offer, nil
}

// ParseOffer разбирает SDP из текста
func ParseOffer(raw string) (*sdp.SessionDescription, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, NewError(ErrorCodeNegotiationFailure, "", "некорректный SDP").WithCause(err)
	}
	return &desc, nil
}

func directionOf(attrs []sdp.Attribute, fallback Direction) Direction {
	for _, attr := range attrs {
		switch Direction(attr.Key) {
		case DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
			return Direction(attr.Key)
		}
	}
	return fallback
}

// parseFingerprint проверяет алгоритм и длину отпечатка "sha-256 AB:CD:..."
func parseFingerprint(value string) (*Fingerprint, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return nil, NewError(ErrorCodeNegotiationFailure, "", "некорректный a=fingerprint %q", value)
	}
	algorithm := strings.ToLower(parts[0])
	hash, err := fingerprint.HashFromString(algorithm)
	if err != nil {
		return nil, NewError(ErrorCodeNegotiationFailure, "", "неподдерживаемый алгоритм отпечатка %q", parts[0]).WithCause(err)
	}

	octets := strings.Split(parts[1], ":")
	if len(octets) != hash.Size() {
		return nil, NewError(ErrorCodeNegotiationFailure, "",
			"длина отпечатка %d не соответствует %s", len(octets), algorithm)
	}
	for _, octet := range octets {
		if len(octet) != 2 {
			return nil, NewError(ErrorCodeNegotiationFailure, "", "некорректный байт отпечатка %q", octet)
		}
		if _, err := hex.DecodeString(octet); err != nil {
			return nil, NewError(ErrorCodeNegotiationFailure, "", "некорректный байт отпечатка %q", octet).WithCause(err)
		}
	}
	return &Fingerprint{Algorithm: algorithm, Value: strings.ToUpper(parts[1])}, nil
}

// String для логов
func (o Offer) String() string {
	return fmt.Sprintf("audio=%t(%s) video=%t(%s)", o.Audio, o.AudioDirection, o.Video, o.VideoDirection)
}
