package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/model"
)

// каталожные ресурсы меняются редко и читаются через кэш шлюза
// с длинными TTL; собственного состояния сервис по ним не держит

// Menu возвращает список блюд, опционально отфильтрованный по категории
func (s *SyncService) Menu(ctx context.Context, category string) ([]model.Dish, error) {
	const op = "service.SyncService.Menu"

	var params map[string]string
	if category != "" {
		params = map[string]string{"category": category}
	}

	payload, err := s.gateway.Request(ctx, "menu", params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var dishes []model.Dish
	if err := json.Unmarshal(payload, &dishes); err != nil {
		return nil, fmt.Errorf("%s: failed to decode menu payload: %w", op, err)
	}
	return dishes, nil
}

// Categories возвращает список категорий меню
func (s *SyncService) Categories(ctx context.Context) ([]string, error) {
	const op = "service.SyncService.Categories"

	payload, err := s.gateway.Request(ctx, "categories", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var categories []string
	if err := json.Unmarshal(payload, &categories); err != nil {
		return nil, fmt.Errorf("%s: failed to decode categories payload: %w", op, err)
	}
	return categories, nil
}
