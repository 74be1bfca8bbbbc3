package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AndresVelasco/Inventia/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://production.wompi.co/v1"

	// Merchant acceptance tokens change rarely; a short cache avoids one
	// extra gateway round trip per checkout render.
	merchantCacheTTL = 5 * time.Minute

	requestTimeout = 15 * time.Second
)

// ErrTimeout marks a gateway call that was cancelled by its deadline. Callers
// use it to tell "we don't know if it charged" apart from a decline.
var ErrTimeout = errors.New("wompi: request timed out")

// GatewayError is a non-2xx response reported by the gateway itself.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("wompi: gateway returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the card gateway's REST API. Merchant info is cached per
// client instance, not globally, so multiple clients and tests compose.
type Client struct {
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	EventsSecret    string

	APIBaseURL string
	HTTPClient *http.Client

	mu              sync.Mutex
	cachedMerchant  *MerchantInfo
	merchantExpires time.Time
}

// MerchantInfo carries the acceptance tokens a checkout widget must echo back.
type MerchantInfo struct {
	AcceptanceToken     string
	PersonalAuthToken   string
	AcceptancePermalink string
}

// Transaction is the gateway's view of one charge.
type Transaction struct {
	ID                string
	Status            string
	StatusMessage     string
	Reference         string
	AmountInCents     int64
	Currency          string
	PaymentMethodType string
}

// TransactionRequest describes a charge to create.
type TransactionRequest struct {
	AmountInCents    int64
	Currency         string
	Reference        string
	CustomerEmail    string
	PaymentSourceID  string // empty for widget-tokenized one-time charges
	Recurrent        bool
	InstallmentCount int
}

// PaymentSource is a stored, reusable tokenized card.
type PaymentSource struct {
	ID     string
	Status string
}

func NewClientFromEnv() *Client {
	return &Client{
		PublicKey:       strings.TrimSpace(env.GetEnv("WOMPI_PUBLIC_KEY", "")),
		PrivateKey:      strings.TrimSpace(env.GetEnv("WOMPI_PRIVATE_KEY", "")),
		IntegritySecret: strings.TrimSpace(env.GetEnv("WOMPI_INTEGRITY_SECRET", "")),
		EventsSecret:    strings.TrimSpace(env.GetEnv("WOMPI_EVENTS_SECRET", "")),
		APIBaseURL:      strings.TrimSpace(env.GetEnv("WOMPI_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// GetMerchantInfo fetches the merchant acceptance tokens, serving them from
// the in-client cache while fresh.
func (c *Client) GetMerchantInfo(ctx context.Context) (*MerchantInfo, error) {
	if strings.TrimSpace(c.PublicKey) == "" {
		return nil, errors.New("WOMPI_PUBLIC_KEY is not configured")
	}

	c.mu.Lock()
	if c.cachedMerchant != nil && time.Now().Before(c.merchantExpires) {
		info := *c.cachedMerchant
		c.mu.Unlock()
		return &info, nil
	}
	c.mu.Unlock()

	var raw struct {
		Data struct {
			PresignedAcceptance struct {
				AcceptanceToken string `json:"acceptance_token"`
				Permalink       string `json:"permalink"`
			} `json:"presigned_acceptance"`
			PresignedPersonalDataAuth struct {
				AcceptanceToken string `json:"acceptance_token"`
			} `json:"presigned_personal_data_auth"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/merchants/"+c.PublicKey, "", nil, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Data.PresignedAcceptance.AcceptanceToken) == "" {
		return nil, errors.New("wompi: merchant response missing acceptance token")
	}

	info := &MerchantInfo{
		AcceptanceToken:     raw.Data.PresignedAcceptance.AcceptanceToken,
		PersonalAuthToken:   raw.Data.PresignedPersonalDataAuth.AcceptanceToken,
		AcceptancePermalink: raw.Data.PresignedAcceptance.Permalink,
	}

	c.mu.Lock()
	c.cachedMerchant = info
	c.merchantExpires = time.Now().Add(merchantCacheTTL)
	c.mu.Unlock()

	copied := *info
	return &copied, nil
}

// CreatePaymentSource turns a client-obtained card token into a stored,
// reusable payment source.
func (c *Client) CreatePaymentSource(ctx context.Context, cardToken, customerEmail, acceptanceToken, personalAuthToken string) (*PaymentSource, error) {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return nil, errors.New("WOMPI_PRIVATE_KEY is not configured")
	}
	if strings.TrimSpace(cardToken) == "" {
		return nil, errors.New("wompi: card token is required")
	}
	if strings.TrimSpace(acceptanceToken) == "" {
		return nil, errors.New("wompi: acceptance token is required")
	}

	body := map[string]any{
		"type":             "CARD",
		"token":            strings.TrimSpace(cardToken),
		"customer_email":   strings.TrimSpace(customerEmail),
		"acceptance_token": strings.TrimSpace(acceptanceToken),
	}
	if strings.TrimSpace(personalAuthToken) != "" {
		body["accept_personal_auth"] = strings.TrimSpace(personalAuthToken)
	}

	var raw struct {
		Data struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/payment_sources", c.PrivateKey, body, &raw); err != nil {
		return nil, err
	}
	if raw.Data.ID.String() == "" {
		return nil, errors.New("wompi: payment source response missing id")
	}
	return &PaymentSource{ID: raw.Data.ID.String(), Status: raw.Data.Status}, nil
}

// CreateTransaction creates a charge, either one-time or recurring against a
// stored payment source.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return nil, errors.New("WOMPI_PRIVATE_KEY is not configured")
	}
	if req.AmountInCents <= 0 || strings.TrimSpace(req.Reference) == "" {
		return nil, errors.New("wompi: amount and reference are required")
	}

	installments := req.InstallmentCount
	if installments <= 0 {
		installments = 1
	}
	body := map[string]any{
		"amount_in_cents": req.AmountInCents,
		"currency":        req.Currency,
		"reference":       req.Reference,
		"customer_email":  strings.TrimSpace(req.CustomerEmail),
		"payment_method": map[string]any{
			"installments": installments,
		},
	}
	if strings.TrimSpace(req.PaymentSourceID) != "" {
		body["payment_source_id"] = strings.TrimSpace(req.PaymentSourceID)
	}
	if req.Recurrent {
		body["recurrent"] = true
	}

	var raw transactionEnvelope
	if err := c.do(ctx, http.MethodPost, "/transactions", c.PrivateKey, body, &raw); err != nil {
		return nil, err
	}
	return raw.toTransaction()
}

// GetTransaction fetches a transaction's current state by gateway id.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, errors.New("wompi: transaction id is required")
	}

	var raw transactionEnvelope
	if err := c.do(ctx, http.MethodGet, "/transactions/"+strings.TrimSpace(transactionID), c.PrivateKey, nil, &raw); err != nil {
		return nil, err
	}
	return raw.toTransaction()
}

// VoidPaymentSource invalidates a stored payment source at the gateway.
func (c *Client) VoidPaymentSource(ctx context.Context, paymentSourceID string) error {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return errors.New("WOMPI_PRIVATE_KEY is not configured")
	}
	if strings.TrimSpace(paymentSourceID) == "" {
		return errors.New("wompi: payment source id is required")
	}
	return c.do(ctx, http.MethodPost, "/payment_sources/"+strings.TrimSpace(paymentSourceID)+"/void", c.PrivateKey, nil, nil)
}

type transactionEnvelope struct {
	Data struct {
		ID                string      `json:"id"`
		Status            string      `json:"status"`
		StatusMessage     string      `json:"status_message"`
		Reference         string      `json:"reference"`
		AmountInCents     json.Number `json:"amount_in_cents"`
		Currency          string      `json:"currency"`
		PaymentMethodType string      `json:"payment_method_type"`
	} `json:"data"`
}

func (e *transactionEnvelope) toTransaction() (*Transaction, error) {
	if strings.TrimSpace(e.Data.ID) == "" {
		return nil, errors.New("wompi: transaction response missing id")
	}
	amount, _ := e.Data.AmountInCents.Int64()
	return &Transaction{
		ID:                e.Data.ID,
		Status:            strings.ToUpper(strings.TrimSpace(e.Data.Status)),
		StatusMessage:     e.Data.StatusMessage,
		Reference:         e.Data.Reference,
		AmountInCents:     amount,
		Currency:          e.Data.Currency,
		PaymentMethodType: e.Data.PaymentMethodType,
	}, nil
}

// do performs one bounded-timeout call and decodes a 2xx JSON body into out.
// Deadline hits surface as ErrTimeout, gateway non-2xx as *GatewayError, and
// transport failures as-is.
func (c *Client) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(bearer) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(bearer))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{StatusCode: resp.StatusCode, Message: gatewayMessage(raw, resp.Status)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func gatewayMessage(body []byte, fallback string) string {
	var raw struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Error.Reason != "" {
		return raw.Error.Reason
	}
	if len(body) > 0 && len(body) <= 256 {
		return string(body)
	}
	return fallback
}
