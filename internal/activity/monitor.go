package activity

import (
	"sync"
	"time"
)

// State — явный срез состояния активности для потребителей
// планировщик опроса читает его вместо прямой подписки на события хоста
type State struct {
	Active  bool
	Visible bool
}

// Monitor — дешёвый детектор «актор активно взаимодействует / простаивает»
// живёт только в памяти и сбрасывается при перезапуске процесса
type Monitor struct {
	mu             sync.Mutex
	lastActivityAt time.Time
	visible        bool

	// now подменяется в тестах, чтобы не ждать реального времени
	now func() time.Time
}

// New создаёт новый монитор; свежесозданный считается видимым и активным
func New() *Monitor {
	m := &Monitor{
		visible: true,
		now:     time.Now,
	}
	m.lastActivityAt = m.now()
	return m
}

// Observe фиксирует событие взаимодействия
// источник события не важен: клик, скролл, нажатие — всё считается активностью
func (m *Monitor) Observe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivityAt = m.now()
}

// IsIdle сообщает, прошло ли с последнего взаимодействия больше threshold
func (m *Monitor) IsIdle(threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActivityAt) > threshold
}

// SetVisible фиксирует переход хост-поверхности в фон или обратно
// возврат на передний план считается взаимодействием
func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = visible
	if visible {
		m.lastActivityAt = m.now()
	}
}

// IsVisible сообщает, находится ли хост-поверхность на переднем плане
func (m *Monitor) IsVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Snapshot возвращает срез состояния; активным считается тот,
// кто взаимодействовал в пределах threshold
func (m *Monitor) Snapshot(threshold time.Duration) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Active:  m.now().Sub(m.lastActivityAt) <= threshold,
		Visible: m.visible,
	}
}
