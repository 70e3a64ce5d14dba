package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/model"
)

// время жизни оптимистичного патча: если за 30 секунд сервер так и не
// подтвердил изменение, локальная правка отбрасывается
const patchTTL = 30 * time.Second

const ordersResource = "orders"

var (
	// ErrOrderNotFound возвращается при мутации заказа, которого нет в снапшоте
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidPatch возвращается при попытке записать неизвестное поле
	// или недопустимое значение; такая мутация не ретраится и не применяется
	ErrInvalidPatch = errors.New("invalid patch")
)

// fieldPatch — живой оптимистичный патч одного поля одной сущности
// существует от вызова мутации до подтверждения, отката или истечения срока
type fieldPatch struct {
	value     any
	issuedAt  time.Time
	expiresAt time.Time
}

// SyncService владеет объединённым представлением заказов:
// авторитетный снапшот сервера плюс ещё не подтверждённые локальные патчи
// все мутации заказов проходят только через Mutate
type SyncService struct {
	gateway Gateway
	log     *slog.Logger

	// now подменяется в тестах, чтобы истечение патчей было детерминированным
	now func() time.Time

	mu       sync.Mutex
	snapshot map[int]model.Order
	ids      []int // порядок заказов в последнем снапшоте
	patches  map[int]map[string]fieldPatch
}

// NewSyncService создаёт новый экземпляр сервиса синхронизации
func NewSyncService(gateway Gateway, log *slog.Logger) *SyncService {
	return &SyncService{
		gateway:  gateway,
		log:      log,
		now:      time.Now,
		snapshot: make(map[int]model.Order),
		patches:  make(map[int]map[string]fieldPatch),
	}
}

// FetchSnapshot запрашивает актуальный список заказов и сверяет его
// с живыми патчами: совпавшее поле подтверждает патч и снимает его,
// несовпавшее остаётся перекрытым локальным значением
func (s *SyncService) FetchSnapshot(ctx context.Context) error {
	const op = "service.SyncService.FetchSnapshot"

	// заказы не кэшируются (TTL 0), но дедупликация шлюза всё равно работает
	payload, err := s.gateway.Request(ctx, ordersResource, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var orders []model.Order
	if err := json.Unmarshal(payload, &orders); err != nil {
		return fmt.Errorf("%s: failed to decode orders payload: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked()

	snapshot := make(map[int]model.Order, len(orders))
	ids := make([]int, 0, len(orders))
	for _, o := range orders {
		snapshot[o.ID] = o
		ids = append(ids, o.ID)

		fields, ok := s.patches[o.ID]
		if !ok {
			continue
		}
		for name, p := range fields {
			if fieldEqual(o, name, p.value) {
				// сервер уже отдаёт патченное значение — патч подтверждён
				delete(fields, name)
				s.log.Debug("optimistic patch confirmed",
					slog.Int("order_id", o.ID), slog.String("field", name))
			}
		}
		if len(fields) == 0 {
			delete(s.patches, o.ID)
		}
	}

	// патчи по заказам, исчезнувшим из снапшота, держать не на чем
	for id := range s.patches {
		if _, ok := snapshot[id]; !ok {
			delete(s.patches, id)
		}
	}

	s.snapshot = snapshot
	s.ids = ids

	return nil
}

// Mutate применяет patchFields к заказу немедленно (оптимистично),
// затем выполняет сетевую мутацию; при отказе патч снимается и до возврата
// ошибки выполняется внеочередная сверка с сервером
func (s *SyncService) Mutate(ctx context.Context, orderID int, patchFields map[string]any, op RemoteOperation) error {
	const opName = "service.SyncService.Mutate"

	fields, err := normalizePatch(patchFields)
	if err != nil {
		// клиентская ошибка: ничего не применяли, откатывать нечего
		return fmt.Errorf("%s: %w", opName, err)
	}

	s.mu.Lock()
	if _, ok := s.snapshot[orderID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %d: %w", opName, orderID, ErrOrderNotFound)
	}
	issuedAt := s.now()
	if s.patches[orderID] == nil {
		s.patches[orderID] = make(map[string]fieldPatch)
	}
	for name, value := range fields {
		// более поздний патч того же поля вытесняет более ранний
		s.patches[orderID][name] = fieldPatch{
			value:     value,
			issuedAt:  issuedAt,
			expiresAt: issuedAt.Add(patchTTL),
		}
	}
	s.mu.Unlock()

	s.log.Info("optimistic patch applied", slog.Int("order_id", orderID))

	if err := op(ctx); err != nil {
		// откат: снимаем ровно те патчи, что поставили сами —
		// патч, успевший вытеснить наш, трогать нельзя
		s.mu.Lock()
		if live, ok := s.patches[orderID]; ok {
			for name := range fields {
				if p, ok := live[name]; ok && p.issuedAt.Equal(issuedAt) {
					delete(live, name)
				}
			}
			if len(live) == 0 {
				delete(s.patches, orderID)
			}
		}
		s.mu.Unlock()

		// восстанавливаем наземную истину до того, как отдать отказ вызывающему
		s.reconcile(ctx)

		s.log.Warn("mutation rejected, patch rolled back",
			slog.Int("order_id", orderID), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", opName, err)
	}

	// успех: сервер мог уже отдать новое состояние — сверяемся
	s.reconcile(ctx)

	return nil
}

// reconcile сбрасывает кэш заказов и подтягивает свежий снапшот
// ошибка сверки не маскирует исход мутации, поэтому только логируется
func (s *SyncService) reconcile(ctx context.Context) {
	s.gateway.Invalidate(ordersResource)
	if err := s.FetchSnapshot(ctx); err != nil {
		s.log.Warn("reconciliation fetch failed", slog.String("error", err.Error()))
	}
}

// Orders возвращает объединённое представление: снапшот с наложенными
// поверх живыми патчами, в порядке последнего снапшота
func (s *SyncService) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked()

	orders := make([]model.Order, 0, len(s.ids))
	for _, id := range s.ids {
		orders = append(orders, s.mergedLocked(id))
	}
	return orders
}

// Order возвращает объединённое представление одного заказа
func (s *SyncService) Order(id int) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked()

	if _, ok := s.snapshot[id]; !ok {
		return model.Order{}, false
	}
	return s.mergedLocked(id), true
}

// FilterByStatus возвращает заказы с указанным статусом; чистая выборка
func (s *SyncService) FilterByStatus(status model.OrderStatus) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked()

	var orders []model.Order
	for _, id := range s.ids {
		if o := s.mergedLocked(id); o.Status == status {
			orders = append(orders, o)
		}
	}
	return orders
}

// AggregateCounts возвращает количество заказов по каждому статусу
func (s *SyncService) AggregateCounts() map[model.OrderStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked()

	counts := make(map[model.OrderStatus]int)
	for _, id := range s.ids {
		counts[s.mergedLocked(id).Status]++
	}
	return counts
}

// mergedLocked собирает заказ из снапшота и живых патчей; вызывается под s.mu
func (s *SyncService) mergedLocked(id int) model.Order {
	o := s.snapshot[id]
	for name, p := range s.patches[id] {
		applyField(&o, name, p.value)
	}
	return o
}

// sweepExpiredLocked снимает просроченные патчи; вызывается под s.mu
// единая развёртка с инжектируемыми часами вместо таймера на каждый патч
func (s *SyncService) sweepExpiredLocked() {
	now := s.now()
	for id, fields := range s.patches {
		for name, p := range fields {
			if !now.Before(p.expiresAt) {
				delete(fields, name)
				s.log.Debug("optimistic patch expired",
					slog.Int("order_id", id), slog.String("field", name))
			}
		}
		if len(fields) == 0 {
			delete(s.patches, id)
		}
	}
}

// normalizePatch проверяет и приводит к каноническим типам поля патча
// неизвестное поле или недопустимое значение — клиентская ошибка
func normalizePatch(patchFields map[string]any) (map[string]any, error) {
	if len(patchFields) == 0 {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidPatch)
	}

	fields := make(map[string]any, len(patchFields))
	for name, value := range patchFields {
		switch name {
		case "status":
			var status string
			switch v := value.(type) {
			case model.OrderStatus:
				status = string(v)
			case string:
				status = v
			default:
				return nil, fmt.Errorf("%w: status must be a string", ErrInvalidPatch)
			}
			if !model.ValidStatus(status) {
				return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, status)
			}
			fields[name] = model.OrderStatus(status)
		case "table_number":
			table, ok := value.(int)
			if !ok || table <= 0 {
				return nil, fmt.Errorf("%w: table_number must be a positive integer", ErrInvalidPatch)
			}
			fields[name] = table
		default:
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidPatch, name)
		}
	}
	return fields, nil
}

// applyField накладывает значение патча на копию заказа
func applyField(o *model.Order, name string, value any) {
	switch name {
	case "status":
		o.Status = value.(model.OrderStatus)
	case "table_number":
		o.TableNumber = value.(int)
	}
}

// fieldEqual сообщает, совпало ли поле снапшота с патченным значением
func fieldEqual(o model.Order, name string, value any) bool {
	switch name {
	case "status":
		return o.Status == value.(model.OrderStatus)
	case "table_number":
		return o.TableNumber == value.(int)
	default:
		return false
	}
}
