package notify

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToUserSubscribersOnly(t *testing.T) {
	t.Parallel()

	bus := NewBus(10, nil)
	defer bus.Close()

	mine, cancelMine := bus.Subscribe("u1")
	defer cancelMine()
	other, cancelOther := bus.Subscribe("u2")
	defer cancelOther()

	bus.Notify("u1", KindSuccess, "You earned 5 stars!")

	select {
	case toast := <-mine:
		assert.Equal(t, KindSuccess, toast.Kind)
		assert.Equal(t, "You earned 5 stars!", toast.Message)
		assert.Equal(t, DefaultDuration.Milliseconds(), toast.DurationMS)
		assert.NotEmpty(t, toast.ID)
	case <-time.After(time.Second):
		t.Fatal("expected toast for u1")
	}

	select {
	case toast := <-other:
		t.Fatalf("u2 received foreign toast %+v", toast)
	default:
	}
}

func TestBusMissedReplaysAfterEventID(t *testing.T) {
	t.Parallel()

	bus := NewBus(2, nil)
	bus.Notify("u1", KindInfo, "one")
	bus.Notify("u1", KindInfo, "two")
	bus.Notify("u1", KindInfo, "three")

	missed := bus.Missed("u1", 0)
	require.Len(t, missed, 2, "history is bounded")
	assert.Equal(t, "two", missed[0].Message)

	missed = bus.Missed("u1", missed[0].EventID)
	require.Len(t, missed, 1)
	assert.Equal(t, "three", missed[0].Message)
}

func TestBusCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	bus := NewBus(10, nil)
	ch, cancel := bus.Subscribe("u1")
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	cancel() // safe after Close
	bus.Notify("u1", KindError, "ignored")

	late, _ := bus.Subscribe("u1")
	_, ok = <-late
	assert.False(t, ok)
}

func TestHandleStreamWritesToasts(t *testing.T) {
	t.Parallel()

	bus := NewBus(10, nil)
	defer bus.Close()
	h := NewHandler(bus, StreamConfig{KeepaliveInterval: time.Hour})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithClaims(r.Context(), &identity.Claims{UserID: "u1"})
		h.HandleStream(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readUntil(t, reader, "event: connected")

	bus.Notify("u1", KindError, "Failed to update rewards")
	line := readUntil(t, reader, "data: {")
	assert.Contains(t, line, `"message":"Failed to update rewards"`)
	assert.Contains(t, line, `"type":"error"`)
}

func TestHandleStreamRequiresUser(t *testing.T) {
	t.Parallel()

	h := NewHandler(NewBus(1, nil), StreamConfig{})
	w := httptest.NewRecorder()
	h.HandleStream(w, httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func readUntil(t *testing.T, r *bufio.Reader, prefix string) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
}
