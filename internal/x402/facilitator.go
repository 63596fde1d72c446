package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPFacilitator talks to a remote x402 facilitator service.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFacilitator(baseURL string, timeoutMs int) *HTTPFacilitator {
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	return &HTTPFacilitator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      string              `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

func (f *HTTPFacilitator) Verify(ctx context.Context, payload string, req PaymentRequirements) (VerifyResult, error) {
	var out VerifyResult
	if err := f.post(ctx, "/verify", payload, req, &out); err != nil {
		return VerifyResult{}, err
	}
	return out, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, payload string, req PaymentRequirements) (SettleResult, error) {
	var out SettleResult
	if err := f.post(ctx, "/settle", payload, req, &out); err != nil {
		return SettleResult{}, err
	}
	return out, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, path, payload string, req PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := f.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("facilitator %s: status=%d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

var _ Facilitator = (*HTTPFacilitator)(nil)
