package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyxa/storefront/internal/domain/payment"
)

const testSecret = "whsec_test"

// sign produces a valid signature header for payload at the given time.
func sign(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestWebhook(at time.Time) *Webhook {
	w := NewWebhook(testSecret, DefaultTolerance)
	w.now = func() time.Time { return at }
	return w
}

const succeededPayload = `{
  "id": "evt_1",
  "type": "payment_intent.succeeded",
  "data": {"object": {"id": "pi_123", "status": "succeeded", "amount": 2500}}
}`

func TestVerifyEvent_Valid(t *testing.T) {
	now := time.Now()
	w := newTestWebhook(now)

	ev, err := w.VerifyEvent([]byte(succeededPayload), sign(testSecret, now, []byte(succeededPayload)))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payment.EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "pi_123", ev.IntentID)
	assert.Equal(t, "succeeded", ev.IntentStatus)
}

func TestVerifyEvent_WrongSecret(t *testing.T) {
	now := time.Now()
	w := newTestWebhook(now)

	_, err := w.VerifyEvent([]byte(succeededPayload), sign("whsec_other", now, []byte(succeededPayload)))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerifyEvent_TamperedPayload(t *testing.T) {
	now := time.Now()
	w := newTestWebhook(now)

	header := sign(testSecret, now, []byte(succeededPayload))
	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_EVIL","status":"succeeded"}}}`)

	_, err := w.VerifyEvent(tampered, header)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerifyEvent_StaleTimestamp(t *testing.T) {
	now := time.Now()
	w := newTestWebhook(now)

	signed := sign(testSecret, now.Add(-DefaultTolerance-time.Minute), []byte(succeededPayload))
	_, err := w.VerifyEvent([]byte(succeededPayload), signed)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	// Future timestamps are just as suspect.
	signed = sign(testSecret, now.Add(DefaultTolerance+time.Minute), []byte(succeededPayload))
	_, err = w.VerifyEvent([]byte(succeededPayload), signed)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerifyEvent_MalformedHeader(t *testing.T) {
	w := newTestWebhook(time.Now())

	for _, header := range []string{
		"",
		"garbage",
		"t=abc,v1=00",
		"t=123",
		"v1=00",
	} {
		_, err := w.VerifyEvent([]byte(succeededPayload), header)
		assert.ErrorIs(t, err, payment.ErrInvalidSignature, "header %q", header)
	}
}

func TestVerifyEvent_SecondSignatureMatches(t *testing.T) {
	// During secret rolls the processor sends multiple v1 entries; any match
	// accepts the payload.
	now := time.Now()
	w := newTestWebhook(now)

	valid := sign(testSecret, now, []byte(succeededPayload))
	header := fmt.Sprintf("t=%d,v1=%s,%s", now.Unix(), hex.EncodeToString(make([]byte, 32)), valid[len(fmt.Sprintf("t=%d,", now.Unix())):])

	ev, err := w.VerifyEvent([]byte(succeededPayload), header)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", ev.IntentID)
}

func TestVerifyEvent_MissingIntentID(t *testing.T) {
	now := time.Now()
	w := newTestWebhook(now)

	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"status":"succeeded"}}}`)
	_, err := w.VerifyEvent(payload, sign(testSecret, now, payload))
	require.Error(t, err)
	assert.NotErrorIs(t, err, payment.ErrInvalidSignature)
}
