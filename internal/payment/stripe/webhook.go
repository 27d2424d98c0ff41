package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/valyxa/storefront/internal/domain/payment"
)

// DefaultTolerance is how far a webhook timestamp may drift from local time
// before the payload is rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// Webhook verifies signed processor callbacks. The signature header has the
// form "t=<unix>,v1=<hex>[,v1=<hex>...]" where each v1 is an HMAC-SHA256 of
// "<t>.<payload>" under the shared endpoint secret.
type Webhook struct {
	secret    []byte
	tolerance time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

var _ payment.EventVerifier = (*Webhook)(nil)

// NewWebhook creates a verifier for the given endpoint secret. A zero
// tolerance falls back to DefaultTolerance.
func NewWebhook(secret string, tolerance time.Duration) *Webhook {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Webhook{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// VerifyEvent authenticates the raw payload against the signature header and
// decodes it. Any verification failure — malformed header, stale timestamp,
// signature mismatch — fails closed with payment.ErrInvalidSignature; the
// payload is never parsed before the signature checks out.
func (w *Webhook) VerifyEvent(payload []byte, sigHeader string) (*payment.Event, error) {
	ts, sigs, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if drift := w.now().Sub(time.Unix(ts, 0)); drift > w.tolerance || drift < -w.tolerance {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, w.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return decodeEvent(payload)
		}
	}
	return nil, errors.Wrap(payment.ErrInvalidSignature, "no matching signature")
}

// parseSignatureHeader splits "t=...,v1=..." into the timestamp and the
// candidate signatures. Unknown schemes are skipped, matching how the
// processor rolls endpoint secrets.
func parseSignatureHeader(header string) (ts int64, sigs [][]byte, err error) {
	if header == "" {
		return 0, nil, errors.Wrap(payment.ErrInvalidSignature, "missing signature header")
	}

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, errors.Wrap(payment.ErrInvalidSignature, "malformed signature header")
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, errors.Wrap(payment.ErrInvalidSignature, "malformed timestamp")
			}
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue // not a valid hex signature, try the next one
			}
			sigs = append(sigs, sig)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, errors.Wrap(payment.ErrInvalidSignature, "incomplete signature header")
	}
	return ts, sigs, nil
}

// decodeEvent extracts the event envelope and the intent it refers to:
// {"id":..., "type":..., "data":{"object":{"id":..., "status":...}}}.
func decodeEvent(payload []byte) (*payment.Event, error) {
	var ev payment.Event
	d := jx.DecodeBytes(payload)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			ev.ID = v
			return err
		case "type":
			v, err := d.Str()
			ev.Type = v
			return err
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "object" {
					return d.Skip()
				}
				return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "id":
						v, err := d.Str()
						ev.IntentID = v
						return err
					case "status":
						v, err := d.Str()
						ev.IntentStatus = v
						return err
					default:
						return d.Skip()
					}
				})
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode webhook event")
	}

	if ev.Type == "" || ev.IntentID == "" {
		return nil, errors.New("webhook event missing type or intent id")
	}
	return &ev, nil
}
