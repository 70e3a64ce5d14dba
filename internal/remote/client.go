package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/config"

	"github.com/google/uuid"
)

// Client — HTTP-клиент remote resource API
// все чтения и мутации движка проходят через него; кэшированием и
// дедупликацией он не занимается, это зона ответственности gateway
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New создаёт новый экземпляр клиента remote API
func New(cfg config.Remote, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// Fetch выполняет читающий запрос к именованному ресурсу
// params сериализуются в query string с детерминированным порядком ключей
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) ([]byte, error) {
	const op = "remote.Client.Fetch"

	u := c.baseURL + "/api/" + resource
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		// url.Values.Encode сортирует ключи, порядок стабилен
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	return c.do(req, resource)
}

// Mutate выполняет мутирующий запрос; тело сериализуется в JSON
// результат мутации никогда не кэшируется
func (c *Client) Mutate(ctx context.Context, method, resource string, body any) ([]byte, error) {
	const op = "remote.Client.Mutate"

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindClient, Resource: resource, Message: "unencodable mutation body", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+resource, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	payload, err := c.do(req, resource)
	if err != nil {
		return nil, err
	}

	// сервер может ответить 200 с конвертом {success: false, message: ...} —
	// для вызывающего это отклонённая мутация, а не успех
	if rejection := decodeEnvelope(payload, resource); rejection != nil {
		return nil, rejection
	}

	return payload, nil
}

// do выполняет запрос и классифицирует результат по таксономии ошибок
func (c *Client) do(req *http.Request, resource string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		// сеть не ответила: таймаут, обрыв, DNS — всё это transient
		return nil, &Error{Kind: KindTransient, Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Resource: resource, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindServer, StatusCode: resp.StatusCode, Resource: resource, Message: errorMessage(payload)}
	case resp.StatusCode >= 400:
		return nil, &Error{Kind: KindClient, StatusCode: resp.StatusCode, Resource: resource, Message: errorMessage(payload)}
	}

	c.log.Debug("remote call ok",
		slog.String("resource", resource),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(payload)),
	)

	return payload, nil
}

// envelope — конверт ответа мутации: либо обновлённая сущность,
// либо {success, message}; Success как указатель отличает «нет поля» от false
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// decodeEnvelope возвращает ошибку, если конверт сообщает об отказе
func decodeEnvelope(payload []byte, resource string) *Error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		// не конверт, а сущность — это нормальный успешный ответ
		return nil
	}
	if env.Success != nil && !*env.Success {
		return &Error{Kind: KindClient, StatusCode: http.StatusOK, Resource: resource, Message: env.Message}
	}
	return nil
}

// errorMessage пытается достать осмысленный текст из тела ошибки
// FastAPI кладёт его в detail, собственные хэндлеры — в error или message
func errorMessage(payload []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	switch {
	case body.Detail != "":
		return body.Detail
	case body.Error != "":
		return body.Error
	default:
		return body.Message
	}
}

// AcceptOrder переводит заказ в accepted (действие кухни)
func (c *Client) AcceptOrder(ctx context.Context, orderID int) error {
	_, err := c.Mutate(ctx, http.MethodPut, fmt.Sprintf("orders/%d/accept", orderID), nil)
	return err
}

// CompleteOrder переводит заказ в completed (действие кухни)
func (c *Client) CompleteOrder(ctx context.Context, orderID int) error {
	_, err := c.Mutate(ctx, http.MethodPut, fmt.Sprintf("orders/%d/complete", orderID), nil)
	return err
}

// RequestPayment запрашивает счёт по заказу (действие клиента)
func (c *Client) RequestPayment(ctx context.Context, orderID int) error {
	_, err := c.Mutate(ctx, http.MethodPut, fmt.Sprintf("orders/%d/payment", orderID), nil)
	return err
}

// CancelOrder отменяет заказ; сервер отклонит отмену не-pending заказа
func (c *Client) CancelOrder(ctx context.Context, orderID int) error {
	_, err := c.Mutate(ctx, http.MethodPut, fmt.Sprintf("orders/%d/cancel", orderID), nil)
	return err
}
