package service

import "context"

// Gateway определяет контракт для шлюза читающих запросов
// сервис принимает интерфейс, а не конкретный тип, для гибкости и тестируемости
type Gateway interface {
	Request(ctx context.Context, resource string, params map[string]string) ([]byte, error)
	RequestFresh(ctx context.Context, resource string, params map[string]string) ([]byte, error)
	Invalidate(pattern string) int
}

// RemoteOperation — сетевая мутация, которую сервис вызывает после
// оптимистичного применения патча; сам сервис не знает, какой именно
// endpoint за ней стоит
type RemoteOperation func(ctx context.Context) error
