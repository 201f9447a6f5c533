package websocket

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/trentd187/chat-relay/internal/realtime"
)

// ErrMalformedFrame is reported to the client when a frame is not a JSON
// {"event": ..., "data": {...}} object.
var ErrMalformedFrame = errors.New("malformed frame")

// decodeFrame parses one inbound text frame.
func decodeFrame(raw []byte) (realtime.Inbound, error) {
	var in realtime.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return realtime.Inbound{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	if in.Type == "" {
		return realtime.Inbound{}, errors.Wrap(ErrMalformedFrame, "missing event name")
	}
	return in, nil
}
