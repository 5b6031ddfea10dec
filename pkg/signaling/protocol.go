package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Входящие кадры
const (
	FramePropose         = "propose"
	FrameSessionInitiate = "session-initiate"
	FrameRemoteMedia     = "remote-media"
	FrameTerminated      = "terminated"
	FrameCancel          = "cancel"
	FrameHandled         = "handled"
	FrameError           = "error"
	FrameTrace           = "trace"
	FrameIceServers      = "ice-servers"
)

// Исходящие кадры
const (
	FrameAccept            = "accept"
	FrameReject            = "reject"
	FrameInitiate          = "initiate"
	FrameSessionAccept     = "session-accept"
	FrameSessionTerminate  = "session-terminate"
	FrameIceServersRequest = "ice-servers-request"
)

// TrackInfo описание удаленного трека в кадре remote-media
type TrackInfo struct {
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// Frame JSON кадр сигнального канала.
// Заполняются только поля, относящиеся к типу кадра.
type Frame struct {
	Type                  string             `json:"type"`
	RequestID             string             `json:"requestId,omitempty"`
	SessionID             string             `json:"sessionId,omitempty"`
	ConversationID        string             `json:"conversationId,omitempty"`
	From                  string             `json:"from,omitempty"`
	AutoAnswer            bool               `json:"autoAnswer,omitempty"`
	SDP                   string             `json:"sdp,omitempty"`
	Reason                string             `json:"reason,omitempty"`
	Tracks                []TrackInfo        `json:"tracks,omitempty"`
	JID                   string             `json:"jid,omitempty"`
	SourceCommunicationID string             `json:"sourceCommunicationId,omitempty"`
	MediaPurpose          string             `json:"mediaPurpose,omitempty"`
	IceServers            []webrtc.ICEServer `json:"iceServers,omitempty"`
	Level                 string             `json:"level,omitempty"`
	Message               string             `json:"message,omitempty"`
	Details               json.RawMessage    `json:"details,omitempty"`
	Error                 string             `json:"error,omitempty"`
}

var (
	errShortMediaFrame = errors.New("signaling: короткий медиа кадр")
	errTooManyTracks   = fmt.Errorf("signaling: больше %d локальных треков в сессии", maxMediaTracks)
)

// maxMediaTracks индекс трека в медиа кадре занимает один байт
const maxMediaTracks = 256

// encodeMedia упаковывает RTP пакет в бинарный кадр:
// [длина id][id сессии][индекс трека][RTP]
func encodeMedia(sessionID string, track uint8, pkt *rtp.Packet) ([]byte, error) {
	if len(sessionID) == 0 || len(sessionID) > 255 {
		return nil, fmt.Errorf("signaling: недопустимая длина id сессии %d", len(sessionID))
	}
	payload, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("signaling: marshal rtp: %w", err)
	}
	out := make([]byte, 0, 2+len(sessionID)+len(payload))
	out = append(out, byte(len(sessionID)))
	out = append(out, sessionID...)
	out = append(out, track)
	out = append(out, payload...)
	return out, nil
}

func decodeMedia(data []byte) (string, uint8, *rtp.Packet, error) {
	if len(data) < 2 {
		return "", 0, nil, errShortMediaFrame
	}
	idLen := int(data[0])
	if idLen == 0 || len(data) < 2+idLen {
		return "", 0, nil, errShortMediaFrame
	}
	sessionID := string(data[1 : 1+idLen])
	track := data[1+idLen]

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data[2+idLen:]); err != nil {
		return "", 0, nil, fmt.Errorf("signaling: unmarshal rtp: %w", err)
	}
	return sessionID, track, pkt, nil
}
