package rasterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"siting_service/internal/domain/model"
)

// tokenSlack is how long before expiry a session token is refreshed.
const tokenSlack = 30 * time.Second

// HTTPRasterClient fetches raster layer samples from the remote raster service.
// Credentials are scoped to the client instance: a short-lived session token is
// acquired on demand and refreshed when close to expiry, never held in
// process-global state.
type HTTPRasterClient struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewHTTPRasterClient(baseURL, apiKey string) *HTTPRasterClient {
	return &HTTPRasterClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type fetchLayerRequest struct {
	Layer    string            `json:"layer"`
	Boundary model.BoundingBox `json:"boundary"`
	Start    string            `json:"start"`
	End      string            `json:"end"`
}

type fetchLayerResponse struct {
	Points []model.RasterPoint `json:"points"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// FetchLayer retrieves the extracted samples of one layer, in the service's
// point order.
func (c *HTTPRasterClient) FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error) {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire raster session: %w", err)
	}

	body, err := json.Marshal(fetchLayerRequest{
		Layer:    string(layer),
		Boundary: box,
		Start:    tr.Start.Format("2006-01-02"),
		End:      tr.End.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal layer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/layers/fetch", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create layer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raster service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raster service returned status: %d", resp.StatusCode)
	}

	var fetched fetchLayerResponse
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		return nil, fmt.Errorf("failed to decode layer response: %w", err)
	}

	return fetched.Points, nil
}

// sessionToken returns a valid session token, exchanging the API key for a new
// one when the current token is missing or close to expiry.
func (c *HTTPRasterClient) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(tokenSlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status: %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.token = tok.Token
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}
