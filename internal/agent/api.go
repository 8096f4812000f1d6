package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/models"
)

// OrderAPI is the slice of the dispatch REST surface the agent needs.
// Acceptance goes over HTTP rather than the channel so the driver gets a
// synchronous win/lose answer.
type OrderAPI interface {
	Accept(ctx context.Context, orderNumber string) error
	PendingOrders(ctx context.Context) ([]models.Summary, error)
}

// HTTPOrderAPI talks to the dispatch server's driver endpoints.
type HTTPOrderAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPOrderAPI(baseURL, token string) *HTTPOrderAPI {
	return &HTTPOrderAPI{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Accept attempts to claim the order. Losing the acceptance race comes back
// as models.ErrAlreadyAssigned.
func (a *HTTPOrderAPI) Accept(ctx context.Context, orderNumber string) error {
	body, _ := json.Marshal(map[string]string{"order_number": orderNumber})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/orders/accept", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return models.ErrAlreadyAssigned
	case http.StatusNotFound:
		return dispatch.ErrOrderNotFound
	default:
		return fmt.Errorf("accept failed with status %d", resp.StatusCode)
	}
}

// PendingOrders fetches the current broadcast pool, used to rebuild the local
// pending list after connecting.
func (a *HTTPOrderAPI) PendingOrders(ctx context.Context) ([]models.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/orders/pending", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pending failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Orders []models.Summary `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return payload.Orders, nil
}
