package signaling

import (
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// BuildAnswer строит SDP ответ на предложение.
// Для каждой принятой m-строки берется первый кодек предложения, направление
// зависит от направления удаленной стороны и наличия локального трека того же типа.
// Отклоненные m-строки отклоняются и в ответе.
func BuildAnswer(offer *sdp.SessionDescription, local []*media.Stream) ([]byte, error) {
	if offer == nil {
		return nil, fmt.Errorf("signaling: нет предложения")
	}
	answer, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return nil, fmt.Errorf("signaling: создание ответа: %w", err)
	}

	for _, offered := range offer.MediaDescriptions {
		if offered == nil {
			continue
		}
		kind := offered.MediaName.Media
		md := sdp.NewJSEPMediaDescription(kind, nil)
		if mid, ok := offered.Attribute("mid"); ok {
			md.WithValueAttribute("mid", mid)
		}

		codec, ok := firstCodec(offer, offered)
		if offered.MediaName.Port.Value == 0 || !ok {
			md.MediaName.Port = sdp.RangedPort{Value: 0}
			md.MediaName.Formats = append(md.MediaName.Formats, offered.MediaName.Formats...)
			answer.WithMedia(md.WithPropertyAttribute("inactive"))
			continue
		}

		channels, _ := strconv.ParseUint(codec.EncodingParameters, 10, 16)
		md.WithCodec(codec.PayloadType, codec.Name, codec.ClockRate, uint16(channels), codec.Fmtp)
		md.WithPropertyAttribute(answerDirection(remoteDirection(offer, offered), hasLocal(local, media.Kind(kind))))
		answer.WithMedia(md)
	}
	return answer.Marshal()
}

func firstCodec(offer *sdp.SessionDescription, md *sdp.MediaDescription) (sdp.Codec, bool) {
	for _, format := range md.MediaName.Formats {
		pt, err := strconv.ParseUint(format, 10, 8)
		if err != nil {
			continue
		}
		if codec, err := offer.GetCodecForPayloadType(uint8(pt)); err == nil {
			return codec, true
		}
		// статические типы без rtpmap
		switch pt {
		case 0:
			return sdp.Codec{PayloadType: 0, Name: "PCMU", ClockRate: 8000}, true
		case 8:
			return sdp.Codec{PayloadType: 8, Name: "PCMA", ClockRate: 8000}, true
		}
	}
	return sdp.Codec{}, false
}

func remoteDirection(offer *sdp.SessionDescription, md *sdp.MediaDescription) string {
	for _, attrs := range [][]sdp.Attribute{md.Attributes, offer.Attributes} {
		for _, attr := range attrs {
			switch attr.Key {
			case "sendrecv", "sendonly", "recvonly", "inactive":
				return attr.Key
			}
		}
	}
	return "sendrecv"
}

func answerDirection(remote string, sending bool) string {
	switch remote {
	case "sendrecv":
		if sending {
			return "sendrecv"
		}
		return "recvonly"
	case "sendonly":
		return "recvonly"
	case "recvonly":
		if sending {
			return "sendonly"
		}
		return "inactive"
	default:
		return "inactive"
	}
}

func hasLocal(streams []*media.Stream, kind media.Kind) bool {
	for _, s := range streams {
		if s.HasKind(kind) {
			return true
		}
	}
	return false
}
