package ws

import (
	"fmt"
	"time"

	"selfie-capture-kiosk/models"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ============================================================
// WIRE FORMAT
// ============================================================

type Format int

const (
	FormatJSON Format = iota
	FormatProtobuf
)

// formatFromQuery maps the ?format= query value; anything but "protobuf"
// means JSON.
func formatFromQuery(v string) Format {
	if v == "protobuf" {
		return FormatProtobuf
	}
	return FormatJSON
}

func (f Format) frameType() int {
	if f == FormatProtobuf {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (f Format) String() string {
	if f == FormatProtobuf {
		return "protobuf"
	}
	return "json"
}

// ============================================================
// ENCODE
// ============================================================

func newOutbound(msgType string, data interface{}) models.OutboundMessage {
	return models.OutboundMessage{
		Type: msgType,
		Data: data,
		Time: time.Now().UnixMilli(),
	}
}

// encode renders msg as a JSON text frame or a protobuf Struct binary frame.
// Both carry the same fields.
func encode(f Format, msg models.OutboundMessage) ([]byte, error) {
	raw, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if f == FormatJSON {
		return raw, nil
	}

	var fields map[string]interface{}
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("reparse %s: %w", msg.Type, err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("struct %s: %w", msg.Type, err)
	}
	return proto.Marshal(st)
}

// ============================================================
// DECODE
// ============================================================

// decode accepts JSON text frames from any client and protobuf Struct
// frames from binary clients.
func decode(frameType int, payload []byte) (models.InboundMessage, error) {
	var msg models.InboundMessage

	switch frameType {
	case websocket.TextMessage:
		if err := sonic.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("invalid message: %w", err)
		}

	case websocket.BinaryMessage:
		var st structpb.Struct
		if err := proto.Unmarshal(payload, &st); err != nil {
			return msg, fmt.Errorf("invalid protobuf message: %w", err)
		}
		fields := st.GetFields()
		msg.Type = fields["type"].GetStringValue()
		msg.Data = fields["data"].GetStringValue()

	default:
		return msg, fmt.Errorf("unsupported frame type %d", frameType)
	}

	if msg.Type == "" {
		return msg, fmt.Errorf("message type missing")
	}
	return msg, nil
}
