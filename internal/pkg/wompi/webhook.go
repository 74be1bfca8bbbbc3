package wompi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Event is an inbound gateway webhook payload.
type Event struct {
	Event     string          `json:"event"`
	Data      map[string]any  `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Signature *EventSignature `json:"signature"`
}

// EventSignature names the ordered data properties covered by the checksum.
type EventSignature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// TransactionData extracts the transaction object embedded in an event's
// data, if present.
func (ev *Event) TransactionData() (*Transaction, bool) {
	if ev.Data == nil {
		return nil, false
	}
	node, ok := ev.Data["transaction"].(map[string]any)
	if !ok {
		return nil, false
	}
	tx := &Transaction{
		ID:                stringValue(node["id"]),
		Status:            strings.ToUpper(stringValue(node["status"])),
		StatusMessage:     stringValue(node["status_message"]),
		Reference:         stringValue(node["reference"]),
		Currency:          stringValue(node["currency"]),
		PaymentMethodType: stringValue(node["payment_method_type"]),
	}
	if amount, ok := node["amount_in_cents"].(float64); ok {
		tx.AmountInCents = int64(amount)
	}
	if tx.ID == "" {
		return nil, false
	}
	return tx, true
}

// VerifyEventSignature checks the event checksum: the values named by
// signature.properties are resolved inside data (missing or null nodes
// resolve to the empty string), concatenated in order, followed by the
// timestamp and the shared events secret, hashed with SHA256 and compared in
// constant time. Malformed input of any shape fails closed.
func VerifyEventSignature(ev *Event, secret string) bool {
	if ev == nil || ev.Signature == nil || ev.Data == nil {
		return false
	}
	if len(ev.Signature.Properties) == 0 || strings.TrimSpace(ev.Signature.Checksum) == "" {
		return false
	}
	if strings.TrimSpace(secret) == "" {
		return false
	}

	var b strings.Builder
	for _, prop := range ev.Signature.Properties {
		b.WriteString(resolveProperty(ev.Data, prop))
	}
	b.WriteString(strconv.FormatInt(ev.Timestamp, 10))
	b.WriteString(secret)

	sum := sha256.Sum256([]byte(b.String()))

	expected, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(ev.Signature.Checksum)))
	if err != nil || len(expected) != len(sum) {
		return false
	}
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}

// resolveProperty walks a dot-separated path into the data object. Any
// missing or non-object intermediate node resolves to the empty string; this
// function never panics on hostile input.
func resolveProperty(data map[string]any, path string) string {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = node[part]
		if !ok {
			return ""
		}
	}
	return stringValue(current)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}
