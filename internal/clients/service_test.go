package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	clients map[int64]Client
	billed  map[int64]bool
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{clients: map[int64]Client{}, billed: map[int64]bool{}}
}

func (m *memoryRepo) Search(ctx context.Context, term string, limit int) ([]Client, error) {
	term = strings.ToLower(term)
	var out []Client
	for _, c := range m.clients {
		if strings.Contains(strings.ToLower(c.Name), term) || strings.Contains(c.Phone, term) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) List(ctx context.Context, limit, offset int) ([]Client, int, error) {
	var out []Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (m *memoryRepo) Create(ctx context.Context, input Input) (Client, error) {
	m.nextID++
	c := Client{ID: m.nextID, Name: input.Name, Phone: input.Phone, Address: input.Address, CreatedAt: time.Now()}
	m.clients[c.ID] = c
	return c, nil
}

func (m *memoryRepo) Update(ctx context.Context, id int64, input Input) error {
	c, ok := m.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.Name, c.Phone, c.Address = input.Name, input.Phone, input.Address
	m.clients[id] = c
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) error {
	if m.billed[id] {
		return ErrClientInUse
	}
	if _, ok := m.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(m.clients, id)
	return nil
}

func TestSearchMatchesNameAndPhone(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	_, err := svc.Create(ctx, Input{Name: "Asad", Phone: "03001234567"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Input{Name: "Bilal", Phone: "03217654321"})
	require.NoError(t, err)

	found, err := svc.Search(ctx, "as", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Asad", found[0].Name)

	found, err = svc.Search(ctx, "0321", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Bilal", found[0].Name)

	found, err = svc.Search(ctx, "   ", 0)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestCreateTrimsAndValidates(t *testing.T) {
	svc := NewService(newMemoryRepo())
	c, err := svc.Create(context.Background(), Input{Name: "  Asad ", Phone: " 0300 "})
	require.NoError(t, err)
	require.Equal(t, "Asad", c.Name)
	require.Equal(t, "0300", c.Phone)

	_, err = svc.Create(context.Background(), Input{Name: " "})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDeleteBilledClientRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	c, err := svc.Create(ctx, Input{Name: "Asad"})
	require.NoError(t, err)
	repo.billed[c.ID] = true

	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrClientInUse)
	_, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestHandlerSearchAndDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	_, err := svc.Create(context.Background(), Input{Name: "Asad", Phone: "03001234567"})
	require.NoError(t, err)
	repo.billed[1] = true

	r := chi.NewRouter()
	r.Route("/clients", NewHandler(nil, svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/search?q=asa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"phone":"03001234567"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/clients/1", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
