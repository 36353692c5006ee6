package httpbridge

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// MaxBodyBytes caps inbound request bodies.
const MaxBodyBytes = 1 << 20

// InboundPayload is the JSON body of an inbound webhook request.
//
// DecodeInboundPayload fills only ConversationID and AccountID. The
// remaining fields are filled by DecodeFields once the request is
// authorized.
type InboundPayload struct {
	ConversationID string         `json:"conversationId"`
	Text           *string        `json:"text,omitempty"`
	Message        *string        `json:"message,omitempty"`
	SenderID       string         `json:"senderId,omitempty"`
	SenderName     string         `json:"senderName,omitempty"`
	CallbackURL    string         `json:"callbackUrl,omitempty"`
	AccountID      string         `json:"accountId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	raw map[string]json.RawMessage
}

// DecodeInboundPayload validates the body's shape: non-empty JSON object
// with a non-empty string conversationId. A non-string accountId is
// ignored. No other field is inspected.
func DecodeInboundPayload(body []byte) (*InboundPayload, *InboundError) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errInvalidPayload("empty payload")
	}
	if !json.Valid(trimmed) {
		return nil, errInvalidPayload("invalid JSON")
	}
	if trimmed[0] != '{' {
		return nil, errInvalidPayload("invalid payload")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errInvalidPayload("invalid payload")
	}

	p := &InboundPayload{raw: raw}
	p.ConversationID = strings.TrimSpace(rawString(raw["conversationId"]))
	if p.ConversationID == "" {
		return nil, errInvalidPayload("conversationId is required")
	}
	p.AccountID = strings.TrimSpace(rawString(raw["accountId"]))
	return p, nil
}

// rawString returns v as a string, or "" when v is absent or not a string.
func rawString(v json.RawMessage) string {
	var s string
	if len(v) == 0 || json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

// DecodeFields decodes the message fields. text, message, senderId,
// senderName and callbackUrl must be strings or null when present.
// metadata is kept only when it is an object.
func (p *InboundPayload) DecodeFields() *InboundError {
	optional := []struct {
		key string
		dst **string
	}{
		{"text", &p.Text},
		{"message", &p.Message},
	}
	for _, f := range optional {
		v, ok := p.raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return errInvalidPayload("invalid payload")
		}
	}

	plain := []struct {
		key string
		dst *string
	}{
		{"senderId", &p.SenderID},
		{"senderName", &p.SenderName},
		{"callbackUrl", &p.CallbackURL},
	}
	for _, f := range plain {
		v, ok := p.raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return errInvalidPayload("invalid payload")
		}
	}

	if v, ok := p.raw["metadata"]; ok {
		var meta map[string]any
		if json.Unmarshal(v, &meta) == nil {
			p.Metadata = meta
		}
	}
	return nil
}

// RawText returns the trimmed message text: "text" when present, otherwise
// "message".
func (p *InboundPayload) RawText() (string, *InboundError) {
	var raw string
	switch {
	case p.Text != nil:
		raw = *p.Text
	case p.Message != nil:
		raw = *p.Message
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errInvalidPayload("text is required")
	}
	return raw, nil
}

// FromLabel is the human label for the sender.
func (p *InboundPayload) FromLabel() string {
	if name := strings.TrimSpace(p.SenderName); name != "" {
		return name
	}
	if id := strings.TrimSpace(p.SenderID); id != "" {
		return id
	}
	return "conv:" + p.ConversationID
}

// ValidateCallbackURL checks raw is an absolute http(s) URL whose host is in
// the account's allow-list (when one is configured).
func ValidateCallbackURL(raw string, account ResolvedAccount) *InboundError {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" {
		return errCallbackInvalid("callbackUrl must be a valid URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return errCallbackInvalid("callbackUrl must use http or https")
	}
	if parsed.Hostname() == "" {
		return errCallbackInvalid("callbackUrl must be a valid URL")
	}
	if port := parsed.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return errCallbackInvalid("callbackUrl must be a valid URL")
		}
	}
	if allow := account.Config.AllowCallbackHosts; len(allow) > 0 {
		host := strings.ToLower(parsed.Hostname())
		for _, entry := range allow {
			if strings.ToLower(strings.TrimSpace(entry)) == host {
				return nil
			}
		}
		return errCallbackInvalid("callbackUrl host not allowed")
	}
	return nil
}
