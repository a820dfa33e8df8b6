package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/br7tech/billdesk/internal/shared"
)

// Service holds client maintenance rules.
type Service struct {
	repo Repository
}

// NewService constructs the client service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search backs the search-as-you-type picker. A blank term yields nothing.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]Client, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Client{}, nil
	}
	clients, err := s.repo.Search(ctx, term, shared.ClampLimit(limit, 10, 50))
	if err != nil {
		return nil, fmt.Errorf("clients: search: %w", err)
	}
	return clients, nil
}

// List returns clients newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Client, shared.Pagination, error) {
	limit = shared.ClampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}
	clients, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("clients: list: %w", err)
	}
	return clients, shared.NewPagination(limit, offset, total), nil
}

// Get loads a client.
func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a client.
func (s *Service) Create(ctx context.Context, input Input) (Client, error) {
	input, err := clean(input)
	if err != nil {
		return Client{}, err
	}
	return s.repo.Create(ctx, input)
}

// Update replaces the editable fields of a client.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Client, error) {
	input, err := clean(input)
	if err != nil {
		return Client{}, err
	}
	if err := s.repo.Update(ctx, id, input); err != nil {
		return Client{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a client that nothing references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func clean(input Input) (Input, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Address = strings.TrimSpace(input.Address)
	if input.Name == "" {
		return Input{}, ErrInvalidName
	}
	return input, nil
}
