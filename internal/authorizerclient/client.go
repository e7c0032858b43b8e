// Package authorizerclient talks to the authorizer HTTP API.
package authorizerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/shopspring/decimal"
)

type Client struct {
	Base     string
	HTTP     *http.Client
	Username string
	Password string
}

func New(base string, hc *http.Client, username, password string) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		Base:     strings.TrimRight(base, "/"),
		HTTP:     hc,
		Username: username,
		Password: password,
	}
}

// APIError is any non-2xx answer. Body holds the trimmed response text,
// which for declines is the decline code.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCard returns the stored card. When the card already exists the
// stored card is returned together with an *APIError carrying 422.
func (c *Client) CreateCard(ctx context.Context, number, password string) (models.CardResponse, error) {
	var card models.CardResponse

	resp, err := c.do(ctx, http.MethodPost, "/cartoes", models.CreateCard{Number: number, Password: password})
	if err != nil {
		return card, fmt.Errorf("create card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusUnprocessableEntity {
		return card, readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return card, fmt.Errorf("decode card: %w", err)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return card, &APIError{StatusCode: resp.StatusCode, Body: models.ErrCardAlreadyExists.Error()}
	}
	return card, nil
}

func (c *Client) GetBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	resp, err := c.do(ctx, http.MethodGet, "/cartoes/"+url.PathEscape(number), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, readAPIError(resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	balance, err := decimal.NewFromString(strings.TrimSpace(string(b)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

// ProcessTransaction returns nil only for an approved transaction.
func (c *Client) ProcessTransaction(ctx context.Context, number, password string, amount decimal.Decimal) error {
	resp, err := c.do(ctx, http.MethodPost, "/transacoes", models.TransactionRequest{
		CardNumber: number,
		Password:   password,
		Amount:     amount,
	})
	if err != nil {
		return fmt.Errorf("process transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return readAPIError(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	return c.HTTP.Do(req)
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
