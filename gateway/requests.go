package gateway

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/pubsub-broker/model"
)

// PublishRequest is the body of POST /publish/{topic}. Data may be any
// JSON value; everything else is optional.
type PublishRequest struct {
	Data        interface{} `json:"data"`
	Priority    int         `json:"priority"`
	Expiration  int64       `json:"expiration"`
	CorrelID    string      `json:"correl_id"`
	ExtClientID string      `json:"ext_client_id"`
	InReplyTo   string      `json:"in_reply_to"`
}

// Validate checks the request. The error texts are part of the API
// surface; clients match on them.
func (r PublishRequest) Validate() error {
	return validation.Validate(r.Data,
		validation.NotNil.Error("Message data missing"),
	)
}

// DataString renders the payload as a string. Non-string values are
// serialized back to JSON.
func (r PublishRequest) DataString() (string, error) {
	if s, ok := r.Data.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// MessagesGetRequest is the body of GET /messages/get. All fields are
// optional; out-of-bound values are clamped, not rejected.
type MessagesGetRequest struct {
	MaxLen      int  `json:"max_len"`
	MaxMessages int  `json:"max_messages"`
	WrapInList  bool `json:"wrap_in_list"`
}

// Validate rejects negative bounds. Zero means "use the default".
func (r MessagesGetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxLen, validation.Min(0)),
		validation.Field(&r.MaxMessages, validation.Min(0)),
	)
}

// Clamp applies defaults and upper bounds: max_len defaults to and is
// capped at the payload size limit, max_messages defaults to 1 and is
// capped at the per-fetch limit.
func (r *MessagesGetRequest) Clamp() {
	if r.MaxLen <= 0 || r.MaxLen > model.MaxMessageLen {
		r.MaxLen = model.MaxMessageLen
	}
	if r.MaxMessages <= 0 {
		r.MaxMessages = 1
	}
	if r.MaxMessages > model.MaxMessagesPerFetch {
		r.MaxMessages = model.MaxMessagesPerFetch
	}
}
