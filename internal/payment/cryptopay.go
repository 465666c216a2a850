package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

const CryptoPaySignatureHeader = "crypto-pay-api-signature"

// CryptoPay signs the raw body with HMAC-SHA256 keyed by SHA256(token).
type CryptoPay struct {
	token string
}

func NewCryptoPay(token string) *CryptoPay {
	return &CryptoPay{token: token}
}

func (c *CryptoPay) Name() model.PaymentProvider { return model.PaymentProviderCryptoPay }

func (c *CryptoPay) Verify(r *Request) error {
	if c.token == "" {
		return ErrNotConfigured
	}
	got := r.Header.Get(CryptoPaySignatureHeader)
	if got == "" || !hmac.Equal([]byte(got), []byte(SignCryptoPay(c.token, r.Body))) {
		return ErrInvalidSignature
	}
	return nil
}

func SignCryptoPay(token string, body []byte) string {
	key := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type cryptoPayUpdate struct {
	UpdateType string `json:"update_type"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id"`
		Status    string `json:"status"`
		Payload   string `json:"payload"`
	} `json:"payload"`
}

// Parse leaves Amount unset: invoices are priced in the crypto asset, not
// in the balance currency.
func (c *CryptoPay) Parse(body []byte) (*model.PaymentEvent, error) {
	var u cryptoPayUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := &model.PaymentEvent{
		Provider:   model.PaymentProviderCryptoPay,
		PaymentID:  u.Payload.Payload,
		ExternalID: strconv.FormatInt(u.Payload.InvoiceID, 10),
		Outcome:    model.PaymentOutcomeIgnored,
	}
	if u.UpdateType == "invoice_paid" && u.Payload.Status == "paid" {
		ev.Outcome = model.PaymentOutcomeSucceeded
	}
	return checked(ev)
}
