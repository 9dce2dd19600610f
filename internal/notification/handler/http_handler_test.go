package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	items []inapp.Notification
}

func (s *memStore) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := inapp.Notification{
		ID:        uuid.New(),
		AgentID:   p.AgentID,
		LeadID:    p.LeadID,
		Kind:      p.Kind,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.items = append(s.items, n)
	return n, nil
}

func (s *memStore) List(_ context.Context, agentID uuid.UUID, limit, offset int) ([]inapp.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []inapp.Notification
	for _, n := range s.items {
		if n.AgentID == agentID {
			mine = append(mine, n)
		}
	}
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return mine[offset:end], total, nil
}

func (s *memStore) CountUnread(_ context.Context, agentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if n.AgentID == agentID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *memStore) MarkRead(_ context.Context, agentID, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id && n.AgentID == agentID {
			s.items[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkAllRead(_ context.Context, agentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for i, n := range s.items {
		if n.AgentID == agentID && !n.IsRead {
			s.items[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (s *memStore) MarkReadByLead(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	return 0, nil
}

func setupInbox(t *testing.T, agentID uuid.UUID) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memStore{}
	svc := inapp.NewService(store, nil)
	engine := gin.New()
	group := engine.Group("/notifications", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, agentID)
		c.Set(httpkit.ContextRolesKey, []string{httpkit.RoleAgent})
	})
	NewHTTPHandler(svc).RegisterRoutes(group)
	return engine, store
}

func do(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestListPagesOwnInbox(t *testing.T) {
	agentID := uuid.New()
	engine, store := setupInbox(t, agentID)
	ctx := context.Background()
	for range 3 {
		_, _ = store.Create(ctx, inapp.CreateParams{AgentID: agentID, Kind: inapp.KindBroadcastOffer, Title: "New lead"})
	}
	_, _ = store.Create(ctx, inapp.CreateParams{AgentID: uuid.New(), Kind: inapp.KindAssigned, Title: "Not mine"})

	rec := do(engine, http.MethodGet, "/notifications?page=2&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InboxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 3, resp.Unread)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.Limit)
}

func TestListClampsPageSize(t *testing.T) {
	engine, _ := setupInbox(t, uuid.New())

	rec := do(engine, http.MethodGet, "/notifications?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InboxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, maxPageSize, resp.Limit)
	assert.NotNil(t, resp.Items)

	rec = do(engine, http.MethodGet, "/notifications?page=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadIsScopedToCaller(t *testing.T) {
	agentID := uuid.New()
	engine, store := setupInbox(t, agentID)
	ctx := context.Background()

	mine, _ := store.Create(ctx, inapp.CreateParams{AgentID: agentID, Title: "Claim window running"})
	theirs, _ := store.Create(ctx, inapp.CreateParams{AgentID: uuid.New(), Title: "Other agent"})

	rec := do(engine, http.MethodPatch, "/notifications/"+mine.ID.String()+"/read")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(engine, http.MethodPatch, "/notifications/"+theirs.ID.String()+"/read")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(engine, http.MethodPatch, "/notifications/not-a-uuid/read")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(engine, http.MethodGet, "/notifications/unread")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestMarkAllReadReportsUpdated(t *testing.T) {
	agentID := uuid.New()
	engine, store := setupInbox(t, agentID)
	ctx := context.Background()
	_, _ = store.Create(ctx, inapp.CreateParams{AgentID: agentID, Title: "a"})
	_, _ = store.Create(ctx, inapp.CreateParams{AgentID: agentID, Title: "b"})

	rec := do(engine, http.MethodPatch, "/notifications/read-all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":2}`, rec.Body.String())
}
