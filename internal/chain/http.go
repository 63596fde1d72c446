package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPQuery polls a transfer-indexer endpoint over HTTP.
type HTTPQuery struct {
	baseURL string
	client  *http.Client
}

func NewHTTPQuery(baseURL string, timeoutMs int) *HTTPQuery {
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	return &HTTPQuery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

type transfersResponse struct {
	Transfers []Transfer `json:"transfers"`
}

func (q *HTTPQuery) RecentTransfers(ctx context.Context, receivingAddress string, lookbackBlocks int64) ([]Transfer, error) {
	u := q.baseURL + "/transfers?to=" + url.QueryEscape(receivingAddress) +
		"&lookback_blocks=" + strconv.FormatInt(lookbackBlocks, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("indexer: status=%d", res.StatusCode)
	}

	var out transfersResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Transfers, nil
}

var _ Query = (*HTTPQuery)(nil)
