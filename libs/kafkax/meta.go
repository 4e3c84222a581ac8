package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is the envelope metadata booking events carry in headers.
type EventMeta struct {
	EventID   string
	EventType string
	Partition int
	Offset    int64
}

// ExtractEventMeta falls back to the message key for the id and the topic
// for the type when producers omit the headers.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, "event_id"),
		EventType: HeaderValue(msg.Headers, "event_type"),
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// LogAttrs returns the metadata as slog key/value pairs.
func (m EventMeta) LogAttrs() []any {
	return []any{"event_id", m.EventID, "event_type", m.EventType, "partition", m.Partition, "offset", m.Offset}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
