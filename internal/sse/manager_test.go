package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.EventChan:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManager_FiltersByResource(t *testing.T) {
	m := newTestManager(t)

	trainers, err := m.Connect([]domain.Resource{domain.ResourceTrainers}, domain.OpAll)
	require.NoError(t, err)
	posts, err := m.Connect([]domain.Resource{domain.ResourcePosts}, domain.OpAll)
	require.NoError(t, err)

	m.Emit(domain.Change{Resource: domain.ResourcePosts, Op: domain.OpInsert, ItemID: "pst-1"})

	evt := receive(t, posts)
	assert.Equal(t, EventResourceChanged, evt.Type)
	assert.Equal(t, domain.ResourcePosts, evt.Resource)

	select {
	case evt := <-trainers.EventChan:
		t.Fatalf("trainer client received %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_FiltersByMask(t *testing.T) {
	m := newTestManager(t)

	c, err := m.Connect([]domain.Resource{domain.ResourceTrainers}, domain.MaskDelete)
	require.NoError(t, err)

	m.Emit(NewChangeEvent(domain.Change{Resource: domain.ResourceTrainers, Op: domain.OpInsert}))
	m.Emit(NewChangeEvent(domain.Change{Resource: domain.ResourceTrainers, Op: domain.OpDelete, ItemID: "trn-1"}))

	evt := receive(t, c)
	change, ok := evt.Data.(domain.Change)
	require.True(t, ok)
	assert.Equal(t, domain.OpDelete, change.Op)
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	c, err := m.Connect(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, open := <-c.EventChan
	assert.False(t, open)
}

func TestManager_EmitAfterShutdownIsDropped(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.NotPanics(t, func() {
		m.Emit(domain.Change{Resource: domain.ResourceTrainers, Op: domain.OpUpdate})
	})
	require.NoError(t, m.Shutdown(ctx))
}

func TestHandler_StreamsChanges(t *testing.T) {
	m := newTestManager(t)
	h := NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?resource=trainers", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return event, data
			}
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				event = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = v
			}
		}
	}

	event, _ := readFrame()
	require.Equal(t, string(EventConnected), event)

	m.Emit(domain.Change{Resource: domain.ResourceTrainers, Op: domain.OpInsert, ItemID: "trn-9"})

	event, data := readFrame()
	assert.Equal(t, string(EventResourceChanged), event)
	assert.JSONEq(t, `{"resource":"trainers","op":"insert","item_id":"trn-9"}`, data)
}

func TestHandler_RejectsUnknownResource(t *testing.T) {
	m := newTestManager(t)
	h := NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?resource=books", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, m.ClientCount())
}
