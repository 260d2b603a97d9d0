package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func sampleBar(symbol string) entity.Bar {
	return entity.Bar{
		Symbol: symbol,
		Time:   time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC),
		Open:   decimal.RequireFromString("100.00"),
		High:   decimal.RequireFromString("101.00"),
		Low:    decimal.RequireFromString("99.50"),
		Close:  decimal.RequireFromString("100.75"),
		Volume: 1000,
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	bar := sampleBar("AAPL")
	payload, _ := json.Marshal(bar)
	mock.ExpectPublish("bars:AAPL", payload).SetVal(1)

	p := NewRedisPublisher(rdb, "")
	require.NoError(t, p.Publish(context.Background(), bar))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	bar := sampleBar("AAPL")
	payload, _ := json.Marshal(bar)
	mock.ExpectPublish("ticks:AAPL", payload).SetErr(errors.New("redis down"))

	p := NewRedisPublisher(rdb, "ticks")
	err := p.Publish(context.Background(), bar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAPL")
}

func TestRedisPublisher_Channel(t *testing.T) {
	t.Parallel()

	p := NewRedisPublisher(nil, "bars")
	assert.Equal(t, "bars:MSFT", p.Channel(" msft"))
}

type recordingPublisher struct {
	err   error
	calls int
}

func (r *recordingPublisher) Publish(ctx context.Context, bar entity.Bar) error {
	r.calls++
	return r.err
}

func TestMulti_Publish(t *testing.T) {
	t.Parallel()

	errA := errors.New("a failed")
	a := &recordingPublisher{err: errA}
	b := &recordingPublisher{}

	err := Multi{a, nil, b}.Publish(context.Background(), sampleBar("AAPL"))

	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "a failing publisher must not stop the others")
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/bars" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	r := gin.New()
	r.GET("/ws/bars", hub.Handler)
	srv := httptest.NewServer(r)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	onlyMSFT := dial(t, srv, "?symbol=msft")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), sampleBar("AAPL")))
	require.NoError(t, hub.Publish(context.Background(), sampleBar("MSFT")))

	_ = all.SetReadDeadline(time.Now().Add(time.Second))
	var got entity.Bar
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.True(t, got.Close.Equal(decimal.RequireFromString("100.75")))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "MSFT", got.Symbol)

	_ = onlyMSFT.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, onlyMSFT.ReadJSON(&got))
	assert.Equal(t, "MSFT", got.Symbol, "filtered subscriber receives only its symbol")
}

func TestHub_RemovesDisconnectedClient(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	r := gin.New()
	r.GET("/ws/bars", hub.Handler)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// 購読者がいなくても配信はエラーにならない
	assert.NoError(t, hub.Publish(context.Background(), sampleBar("AAPL")))
}
