package wompi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"testing"
)

const testEventsSecret = "test_events_secret"

func signedEvent(t *testing.T, status string) *Event {
	t.Helper()

	data := map[string]any{
		"transaction": map[string]any{
			"id":              "1234-5678",
			"status":          status,
			"amount_in_cents": float64(8990000),
			"reference":       "INV-7-PYME-MONTHLY-abc",
			"currency":        "COP",
		},
	}
	props := []string{"transaction.id", "transaction.status", "transaction.amount_in_cents"}
	ts := int64(1700000000)

	concat := "1234-5678" + status + "8990000" + strconv.FormatInt(ts, 10) + testEventsSecret
	sum := sha256.Sum256([]byte(concat))

	return &Event{
		Event:     "transaction.updated",
		Data:      data,
		Timestamp: ts,
		Signature: &EventSignature{
			Properties: props,
			Checksum:   hex.EncodeToString(sum[:]),
		},
	}
}

func TestVerifyEventSignatureValid(t *testing.T) {
	ev := signedEvent(t, "APPROVED")
	if !VerifyEventSignature(ev, testEventsSecret) {
		t.Fatalf("expected valid signature to verify")
	}
}

func TestVerifyEventSignatureTamperedChecksum(t *testing.T) {
	ev := signedEvent(t, "APPROVED")

	// Flip one nibble of the checksum.
	raw := []byte(ev.Signature.Checksum)
	if raw[0] == 'a' {
		raw[0] = 'b'
	} else {
		raw[0] = 'a'
	}
	ev.Signature.Checksum = string(raw)

	if VerifyEventSignature(ev, testEventsSecret) {
		t.Fatalf("expected tampered checksum to fail")
	}
}

func TestVerifyEventSignatureLengthMismatch(t *testing.T) {
	ev := signedEvent(t, "APPROVED")
	ev.Signature.Checksum = ev.Signature.Checksum[:32]
	if VerifyEventSignature(ev, testEventsSecret) {
		t.Fatalf("expected short checksum to fail")
	}
	ev.Signature.Checksum = "zz-not-hex"
	if VerifyEventSignature(ev, testEventsSecret) {
		t.Fatalf("expected non-hex checksum to fail")
	}
}

func TestVerifyEventSignatureMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		ev   *Event
	}{
		{name: "nil event", ev: nil},
		{name: "missing signature", ev: &Event{Data: map[string]any{}}},
		{name: "missing data", ev: &Event{Signature: &EventSignature{Properties: []string{"a"}, Checksum: "ab"}}},
		{name: "empty properties", ev: &Event{Data: map[string]any{}, Signature: &EventSignature{Checksum: "ab"}}},
		{name: "empty checksum", ev: &Event{Data: map[string]any{}, Signature: &EventSignature{Properties: []string{"a"}}}},
	}

	for _, tt := range tests {
		if VerifyEventSignature(tt.ev, testEventsSecret) {
			t.Fatalf("%s: expected verification to fail closed", tt.name)
		}
	}
}

func TestResolvePropertyMissingIntermediate(t *testing.T) {
	data := map[string]any{
		"transaction": map[string]any{
			"payment_method": nil,
		},
	}

	tests := []string{
		"transaction.payment_method.type", // null intermediate
		"transaction.missing.deeper",      // absent intermediate
		"nope",                            // absent root
		"transaction.payment_method",      // null leaf
	}
	for _, path := range tests {
		if got := resolveProperty(data, path); got != "" {
			t.Fatalf("resolveProperty(%q) = %q, want empty string", path, got)
		}
	}
}

func TestParseEventAndTransactionData(t *testing.T) {
	raw := []byte(`{
		"event": "transaction.updated",
		"data": {
			"transaction": {
				"id": "tx-99",
				"status": "approved",
				"amount_in_cents": 24273000,
				"reference": "INV-3-PYME-QUARTERLY-xyz",
				"currency": "COP",
				"payment_method_type": "CARD"
			}
		},
		"timestamp": 1700000123,
		"signature": { "properties": ["transaction.id"], "checksum": "00" }
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	tx, ok := ev.TransactionData()
	if !ok {
		t.Fatalf("expected transaction data to be present")
	}
	if tx.ID != "tx-99" || tx.Status != "APPROVED" || tx.AmountInCents != 24273000 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	var empty Event
	if err := json.Unmarshal([]byte(`{"event":"x"}`), &empty); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if _, ok := empty.TransactionData(); ok {
		t.Fatalf("expected no transaction data for empty event")
	}
}
