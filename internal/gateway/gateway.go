package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Fetcher определяет контракт для транспорта, который умеет читать ресурсы
// это позволяет gateway не зависеть от конкретной реализации remote-клиента
type Fetcher interface {
	Fetch(ctx context.Context, resource string, params map[string]string) ([]byte, error)
}

// Gateway — единая точка прохода всего читающего трафика
// гарантирует не более одного сетевого вызова на ключ в каждый момент времени
// и кэширование с ограниченной по TTL несвежестью
type Gateway struct {
	fetcher Fetcher
	cache   *gocache.Cache
	group   singleflight.Group
	ttl     map[string]time.Duration
	log     *slog.Logger
}

// интервал фоновой уборки просроченных записей кэша
const cleanupInterval = time.Minute

// New создаёт новый экземпляр gateway
// ttl — таблица времени жизни по типам ресурсов; нулевое или отсутствующее
// значение означает, что ресурс не кэшируется вовсе
func New(fetcher Fetcher, ttl map[string]time.Duration, log *slog.Logger) *Gateway {
	return &Gateway{
		fetcher: fetcher,
		cache:   gocache.New(gocache.NoExpiration, cleanupInterval),
		ttl:     ttl,
		log:     log,
	}
}

// CacheKey собирает ключ кэша из имени ресурса и параметров запроса
// url.Values.Encode сортирует ключи, поэтому ключ детерминирован
func CacheKey(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return resource + "?" + q.Encode()
}

// Request возвращает payload ресурса: из кэша, из уже летящего запроса
// или по сети — в таком порядке
func (g *Gateway) Request(ctx context.Context, resource string, params map[string]string) ([]byte, error) {
	return g.request(ctx, resource, params, true)
}

// RequestFresh пропускает чтение кэша, но сохраняет дедупликацию
// и кладёт свежий результат в кэш как обычно
func (g *Gateway) RequestFresh(ctx context.Context, resource string, params map[string]string) ([]byte, error) {
	return g.request(ctx, resource, params, false)
}

func (g *Gateway) request(ctx context.Context, resource string, params map[string]string, useCache bool) ([]byte, error) {
	const op = "gateway.Gateway.request"

	key := CacheKey(resource, params)
	ttl := g.ttlFor(resource)

	if useCache && ttl > 0 {
		if cached, found := g.cache.Get(key); found {
			g.log.Debug("cache hit", slog.String("key", key))
			return cached.([]byte), nil
		}
	}

	// singleflight схлопывает конкурентные одинаковые запросы в один сетевой
	// вызов; запись в кэш происходит внутри дедуплицированной функции, поэтому
	// между проверкой pending и сохранением результата никто не вклинится
	result, err, shared := g.group.Do(key, func() (any, error) {
		payload, err := g.fetcher.Fetch(ctx, resource, params)
		if err != nil {
			// ошибку не кэшируем: следующий такой же запрос снова пойдёт в сеть
			return nil, err
		}
		if ttl > 0 {
			g.cache.Set(key, payload, ttl)
		}
		return payload, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if shared {
		g.log.Debug("request deduplicated", slog.String("key", key))
	}

	return result.([]byte), nil
}

// ttlFor возвращает TTL по типу ресурса
// для ключей вида orders/7/accept типом считается первый сегмент пути
func (g *Gateway) ttlFor(resource string) time.Duration {
	kind, _, _ := strings.Cut(resource, "/")
	return g.ttl[kind]
}

// Invalidate удаляет все записи кэша, ключ которых содержит pattern
// возвращает число удалённых записей
func (g *Gateway) Invalidate(pattern string) int {
	removed := 0
	for key := range g.cache.Items() {
		if strings.Contains(key, pattern) {
			g.cache.Delete(key)
			removed++
		}
	}
	if removed > 0 {
		g.log.Debug("cache invalidated", slog.String("pattern", pattern), slog.Int("removed", removed))
	}
	return removed
}

// Stats — диагностический срез состояния кэша
// на корректность не влияет, используется только для отладки и индикации
type Stats struct {
	Entries    int
	ByResource map[string]int
	SizeBytes  int
}

// Stats собирает текущую статистику кэша
func (g *Gateway) Stats() Stats {
	stats := Stats{ByResource: make(map[string]int)}
	for key, item := range g.cache.Items() {
		stats.Entries++
		name, _, _ := strings.Cut(key, "?")
		kind, _, _ := strings.Cut(name, "/")
		stats.ByResource[kind]++
		if payload, ok := item.Object.([]byte); ok {
			stats.SizeBytes += len(payload)
		}
	}
	return stats
}
