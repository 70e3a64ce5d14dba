package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// FetchFunc — операция опроса, которую планировщик вызывает периодически
type FetchFunc func(ctx context.Context) error

// ActivitySource определяет контракт для источника сведений о простое
// планировщику не нужен весь монитор активности, только этот вопрос
type ActivitySource interface {
	IsIdle(threshold time.Duration) bool
}

// Options — параметры адаптивной частоты опроса
type Options struct {
	BaseInterval time.Duration
	FastInterval time.Duration
	MaxInterval  time.Duration
	IdleAfter    time.Duration
}

// PollState — срез состояния опроса для индикации свежести данных
// отсутствие явной ошибки плюс недавний LastSuccessAt — контракт «данные свежие»
type PollState struct {
	Interval          time.Duration
	ConsecutiveErrors int
	LastSuccessAt     time.Time
}

// ErrNotStarted возвращается из Refresh, если планировщик ещё ни разу не запускался
var ErrNotStarted = errors.New("poller: scheduler has not been started")

// Scheduler периодически вызывает fetch с адаптивной частотой
// ключевой инвариант: следующий таймер взводится только после того,
// как предыдущий вызов полностью завершился — наложение вызовов исключено
type Scheduler struct {
	opts     Options
	activity ActivitySource
	log      *slog.Logger

	// fetchMu сериализует сами вызовы fetch: тики таймера и Refresh
	// проходят через один слот и никогда не выполняются одновременно
	fetchMu sync.Mutex

	// mu защищает всё, что ниже
	mu            sync.Mutex
	fetch         FetchFunc
	running       bool
	gen           int // поколение; рост отсекает уже выстрелившие устаревшие таймеры
	timer         *time.Timer
	interval      time.Duration
	errs          int
	lastSuccessAt time.Time
	failures      *backoff.ExponentialBackOff
	ctx           context.Context
	cancel        context.CancelFunc
}

// New создаёт новый планировщик; activity может быть nil,
// тогда правило сброса при простое не применяется
func New(opts Options, activity ActivitySource, log *slog.Logger) *Scheduler {
	return &Scheduler{
		opts:     opts,
		activity: activity,
		log:      log,
	}
}

// newFailureBackoff настраивает экспоненциальную лестницу интервалов
// после k подряд ошибок интервал равен min(base·2^k, max)
func newFailureBackoff(opts Options) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * opts.BaseInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = opts.MaxInterval
	return b
}

// Start запускает опрос: один немедленный вызов fetch,
// затем взведение таймера на текущий интервал после завершения вызова
// повторный Start на уже работающем планировщике — no-op
func (s *Scheduler) Start(fetch FetchFunc) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.fetch = fetch
	s.gen++
	gen := s.gen
	s.interval = s.opts.BaseInterval
	s.errs = 0
	s.failures = newFailureBackoff(s.opts)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	s.log.Info("poll scheduler started",
		slog.Duration("base_interval", s.opts.BaseInterval),
		slog.Duration("fast_interval", s.opts.FastInterval),
	)

	// немедленный первый вызов — в отдельной горутине,
	// чтобы Start не блокировался на медленном fetch
	go s.tick(ctx, gen)
}

// Stop останавливает опрос; идемпотентен
// после возврата ни один устаревший таймер не приведёт к вызову fetch
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info("poll scheduler stopped")
}

// NotifyActivity сжимает интервал до fast при всплеске активности:
// взведённый таймер отменяется и перевзводится на более короткую задержку
func (s *Scheduler) NotifyActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.interval <= s.opts.FastInterval {
		return
	}
	s.interval = s.opts.FastInterval
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// старое поколение отсекаем: если его settle ещё впереди, он не перевзведётся
	s.gen++
	s.armLocked(s.ctx, s.interval)
	s.log.Debug("activity burst, polling at fast interval", slog.Duration("interval", s.interval))
}

// Refresh выполняет один внеочередной вызов fetch, не трогая расписание таймера
// используется для ручного обновления и для сверки после мутаций
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.mu.Lock()
	fetch := s.fetch
	s.mu.Unlock()
	if fetch == nil {
		return ErrNotStarted
	}

	s.fetchMu.Lock()
	err := fetch(ctx)
	s.fetchMu.Unlock()

	if err == nil {
		s.mu.Lock()
		s.lastSuccessAt = time.Now()
		s.mu.Unlock()
	}
	return err
}

// State возвращает срез текущего состояния опроса
func (s *Scheduler) State() PollState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PollState{
		Interval:          s.interval,
		ConsecutiveErrors: s.errs,
		LastSuccessAt:     s.lastSuccessAt,
	}
}

// tick — одно полное колебание цикла: вызов fetch и обработка результата
func (s *Scheduler) tick(ctx context.Context, gen int) {
	s.fetchMu.Lock()

	s.mu.Lock()
	if !s.running || gen != s.gen {
		// планировщик остановлен или расписание перевзведено, тик устарел
		s.mu.Unlock()
		s.fetchMu.Unlock()
		return
	}
	fetch := s.fetch
	s.mu.Unlock()

	err := fetch(ctx)
	s.fetchMu.Unlock()

	s.settle(ctx, gen, err)
}

// settle применяет политику интервалов после завершения вызова
// и взводит следующий таймер; до завершения вызова таймер не взводится никогда
func (s *Scheduler) settle(ctx context.Context, gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || gen != s.gen {
		return
	}

	if err != nil {
		s.errs++
		s.interval = s.failures.NextBackOff()
		s.log.Warn("poll failed, backing off",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", s.errs),
			slog.Duration("interval", s.interval),
		)
	} else {
		s.errs = 0
		s.lastSuccessAt = time.Now()
		// лестница ошибок начинается заново после первого же успеха
		s.failures = newFailureBackoff(s.opts)
		// успешные опросы плавно разгоняют частоту до fast
		s.interval = max(time.Duration(float64(s.interval)*0.9), s.opts.FastInterval)
	}

	// при устойчивом простое нет смысла опрашивать чаще базовой частоты
	if s.interval < s.opts.BaseInterval && s.activity != nil && s.activity.IsIdle(s.opts.IdleAfter) {
		s.interval = s.opts.BaseInterval
	}

	s.armLocked(ctx, s.interval)
}

// armLocked взводит таймер следующего тика; вызывается только под s.mu
func (s *Scheduler) armLocked(ctx context.Context, d time.Duration) {
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.tick(ctx, gen)
	})
}
