package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushSink asks the push notification service to tell the customer their
// payment was received
type PushSink struct {
	url    string
	client *http.Client
}

// NewPushSink initializes a push sink posting to url
func NewPushSink(url string, client *http.Client) *PushSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PushSink{url: url, client: client}
}

func (s *PushSink) Name() string { return "push" }

type pushRequest struct {
	CustomerID int64  `json:"customer_id"`
	Template   string `json:"template"`
	Event      Event  `json:"data"`
}

func (s *PushSink) Send(ctx context.Context, ev Event) error {
	template := "payment_received"
	if len(ev.PaidOffAccountPaymentIDs) > 0 {
		template = "installment_paid_off"
	}
	return postJSON(ctx, s.client, s.url, pushRequest{
		CustomerID: ev.CustomerID,
		Template:   template,
		Event:      ev,
	}, nil)
}

// MoengageSink records the repayment as a customer event in Moengage
type MoengageSink struct {
	url    string
	appID  string
	apiKey string
	client *http.Client
}

// NewMoengageSink initializes a Moengage data API sink
func NewMoengageSink(url, appID, apiKey string, client *http.Client) *MoengageSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MoengageSink{url: url, appID: appID, apiKey: apiKey, client: client}
}

func (s *MoengageSink) Name() string { return "moengage" }

type moengageAction struct {
	Action     string         `json:"action"`
	Attributes map[string]any `json:"attributes"`
	UserTime   int64          `json:"user_time"`
}

type moengageRequest struct {
	Type       string           `json:"type"`
	CustomerID string           `json:"customer_id"`
	Actions    []moengageAction `json:"actions"`
}

func (s *MoengageSink) Send(ctx context.Context, ev Event) error {
	body := moengageRequest{
		Type:       "event",
		CustomerID: fmt.Sprintf("%d", ev.CustomerID),
		Actions: []moengageAction{{
			Action: ev.Type,
			Attributes: map[string]any{
				"account_id":       ev.AccountID,
				"amount":           ev.Amount,
				"applied":          ev.Applied,
				"overpayment":      ev.Overpayment,
				"using_cashback":   ev.UsingCashback,
				"payback_service":  ev.Service,
				"paid_off_buckets": len(ev.PaidOffAccountPaymentIDs),
			},
			UserTime: ev.OccurredAt.Unix(),
		}},
	}
	return postJSON(ctx, s.client, s.url, body, func(req *http.Request) {
		req.SetBasicAuth(s.appID, s.apiKey)
		req.Header.Set("MOE-APPKEY", s.appID)
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, decorate func(*http.Request)) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
