package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const apiPrefix = "/api/v1"

type orderLine struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

type createdEntity struct {
	ID string `json:"id"`
}

// apiEnvelope общий конверт ответов HTTP API.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// apiClient ходит в HTTP API от имени одного пользователя.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	return &apiClient{baseURL: baseURL, http: httpClient}
}

func success(code int) bool { return code >= 200 && code < 300 }

// do отправляет JSON и раскладывает data из конверта в out.
// Возвращает HTTP-код, либо 0, если ответа не было.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	if !success(resp.StatusCode) {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// call как do, но ещё пишет замер в col под именем name.
func (c *apiClient) call(ctx context.Context, col *collector, name, method, path string, body, out any) int {
	start := time.Now()
	code, err := c.do(ctx, method, path, body, out)
	if err != nil && success(code) {
		// ответ 2xx, но тело не разобрано
		code = 0
	}
	col.record(name, time.Since(start), code)
	return code
}

func (c *apiClient) login(ctx context.Context, username, password string) error {
	var session struct {
		AccessToken string `json:"accessToken"`
	}
	creds := map[string]string{"username": username, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/auth/login", creds, &session); err != nil {
		return err
	}
	if session.AccessToken == "" {
		return errors.New("empty access token")
	}
	c.token = session.AccessToken
	return nil
}

func (c *apiClient) registerAndLogin(ctx context.Context, username string) error {
	const password = "load-test-pass1"
	user := map[string]string{"name": username, "username": username, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/users", user, nil); err != nil {
		return err
	}
	return c.login(ctx, username, password)
}

// seedProduct заводит категорию и товар, которые заказывают все покупатели.
func (c *apiClient) seedProduct(ctx context.Context, runID string, price decimal.Decimal) (string, error) {
	var category, product createdEntity
	if _, err := c.do(ctx, http.MethodPost, "/categories",
		map[string]string{"name": "Load " + runID}, &category); err != nil {
		return "", err
	}
	if _, err := c.do(ctx, http.MethodPost, "/products", map[string]any{
		"name":       "Load sofa " + runID,
		"price":      price,
		"categoryId": category.ID,
	}, &product); err != nil {
		return "", err
	}
	return product.ID, nil
}
