package remote

import (
	"errors"
	"fmt"
)

// Kind — машиночитаемая классификация ошибки remote API
type Kind int

const (
	// KindTransient — сеть недоступна или ответ не пришёл вовремя
	// такие ошибки уходят в backoff опроса и не показываются пользователю
	KindTransient Kind = iota + 1
	// KindClient — некорректный запрос с нашей стороны (4xx, отклонённая мутация)
	// такие ошибки сразу отдаются вызывающему и не ретраятся
	KindClient
	// KindServer — отказ на стороне сервера (5xx), ведёт себя как transient
	KindServer
)

// String возвращает строковое имя классификации для логов
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error — структурированная ошибка remote API
// несёт классификацию и транспортный статус-код, как того требует контракт API
type Error struct {
	Kind       Kind
	StatusCode int
	Resource   string
	Message    string
	Err        error
}

// Error собирает человекочитаемое описание ошибки
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote %s error on %q (status %d): %s", e.Kind, e.Resource, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote %s error on %q: %s", e.Kind, e.Resource, e.Err.Error())
	}
	return fmt.Sprintf("remote %s error on %q (status %d)", e.Kind, e.Resource, e.StatusCode)
}

// Unwrap отдаёт исходную ошибку транспорта, если она была
func (e *Error) Unwrap() error {
	return e.Err
}

// IsClient сообщает, является ли ошибка клиентской (не подлежит ретраю)
func IsClient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindClient
}

// IsRetryable сообщает, стоит ли абсорбировать ошибку в backoff опроса
// transient и server считаются временными, client — нет
func IsRetryable(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		// неклассифицированная ошибка — считаем временной, чтобы не ронять опрос
		return true
	}
	return re.Kind == KindTransient || re.Kind == KindServer
}
