package gateway

import (
	"math"
	"time"

	"github.com/coregx/pubsub-broker/model"
)

// isoUTC renders a timestamp the way the API expects: microsecond
// precision, explicit +00:00 offset.
func isoUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999") + "+00:00"
}

func parseISO(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func secondsSince(now, then time.Time) float64 {
	sec := now.Sub(then).Seconds()
	return math.Round(sec*1000) / 1000
}

// relayEnvelope builds the broker payload for a published message. The
// pull path reads these keys back verbatim, so both sides must agree on
// them.
func relayEnvelope(msg model.PubSubMessage, recvTime time.Time) map[string]interface{} {
	return map[string]interface{}{
		"data":                msg.Data,
		"msg_id":              msg.PubMsgID,
		"correl_id":           msg.CorrelID,
		"priority":            msg.Priority,
		"expiration":          msg.Expiration,
		"topic_name":          msg.TopicName,
		"size":                msg.Size,
		"pub_time_iso":        isoUTC(msg.PubTime),
		"recv_time_iso":       isoUTC(recvTime),
		"expiration_time_iso": isoUTC(msg.ExpirationTime),
		"ext_client_id":       msg.ExtClientID,
		"in_reply_to":         msg.InReplyTo,
	}
}

// envelopeFromPayload converts a raw broker payload into the response
// envelope. Required meta keys are always present; timestamps and the
// publisher-supplied identifiers only when the payload carries them.
func envelopeFromPayload(payload map[string]interface{}, maxLen int, now time.Time) Envelope {
	data := payload["data"]
	if data == nil {
		data = payload
	}
	data = truncateData(data, maxLen)

	meta := map[string]interface{}{
		"topic_name": stringAt(payload, "topic_name"),
		"size":       intAt(payload, "size", sizeOf(data)),
		"priority":   intAt(payload, "priority", model.DefaultPriority),
		"expiration": int64(intAt(payload, "expiration", model.DefaultExpiration)),
		"msg_id":     stringAt(payload, "msg_id"),
		"correl_id":  stringAt(payload, "correl_id"),
	}

	var pubTime, recvTime time.Time
	var havePub, haveRecv bool

	if s := stringAt(payload, "pub_time_iso"); s != "" {
		meta["pub_time_iso"] = s
		pubTime, havePub = parseISO(s)
	}
	if s := stringAt(payload, "recv_time_iso"); s != "" {
		meta["recv_time_iso"] = s
		recvTime, haveRecv = parseISO(s)
	}
	if s := stringAt(payload, "expiration_time_iso"); s != "" {
		meta["expiration_time_iso"] = s
	}
	if s := stringAt(payload, "ext_client_id"); s != "" {
		meta["ext_client_id"] = s
	}
	if s := stringAt(payload, "in_reply_to"); s != "" {
		meta["in_reply_to"] = s
	}

	if havePub {
		meta["time_since_pub"] = secondsSince(now, pubTime)
	}
	if haveRecv {
		meta["time_since_recv"] = secondsSince(now, recvTime)
	}

	return Envelope{Meta: meta, Data: data}
}

// envelopeFromStored converts a durably stored message into the
// response envelope. Used when messages are served straight from the
// delivery queue table.
func envelopeFromStored(msg model.PubSubMessage, maxLen int, now time.Time) Envelope {
	data := truncateData(msg.Data, maxLen)

	meta := map[string]interface{}{
		"topic_name": msg.TopicName,
		"size":       msg.Size,
		"priority":   msg.Priority,
		"expiration": msg.Expiration,
		"msg_id":     msg.PubMsgID,
		"correl_id":  msg.CorrelID,
	}

	if !msg.PubTime.IsZero() {
		meta["pub_time_iso"] = isoUTC(msg.PubTime)
		meta["time_since_pub"] = secondsSince(now, msg.PubTime)
	}
	if !msg.ExpirationTime.IsZero() {
		meta["expiration_time_iso"] = isoUTC(msg.ExpirationTime)
	}
	if msg.ExtClientID != "" {
		meta["ext_client_id"] = msg.ExtClientID
	}
	if msg.InReplyTo != "" {
		meta["in_reply_to"] = msg.InReplyTo
	}

	return Envelope{Meta: meta, Data: data}
}

func truncateData(data interface{}, maxLen int) interface{} {
	s, ok := data.(string)
	if !ok || maxLen <= 0 || len(s) <= maxLen {
		return data
	}
	return s[:maxLen]
}

func sizeOf(data interface{}) int {
	if s, ok := data.(string); ok {
		return len(s)
	}
	return 0
}

func stringAt(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

// intAt reads a numeric payload value. JSON numbers decode as float64,
// so both representations are accepted.
func intAt(payload map[string]interface{}, key string, fallback int) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}
