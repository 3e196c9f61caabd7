package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/gateway"
	"github.com/robertarktes/event-ticket-inventory/internal/idempotency"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"github.com/robertarktes/event-ticket-inventory/internal/rateLimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestIntegration_BookPayCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	crdbAddr, err := crdbContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	redisAddr, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, crdb.Migrate(ctx, pool))
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = redisClient.Close() })
	redisCache := redisadapter.NewCache(redisClient)

	logger := observability.NewDiscardLogger()
	f := &apiFixture{
		gw: gateway.NewSimulated(),
		tokens: tokens{
			"organizer": {UserID: uuid.New(), Role: domain.RoleOrganizer},
			"alice":     {UserID: uuid.New(), Role: domain.RoleUser},
		},
	}
	coord := inventory.NewCoordinator(repo, f.gw, nil, logger, inventory.Options{})
	router := SetupRouter(NewHandlers(coord, nil, ReadinessCheck{Name: "crdb", Check: repo.Ping}), logger, RouterOptions{
		Verifier:    f.tokens,
		Limiter:     rateLimit.NewRateLimiter(redisCache),
		Idempotency: idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
	})
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)

	resp, _ := f.do(t, http.MethodGet, "/v1/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	e := f.createEvent(t, 3, 0)

	key := uuid.NewString()
	req := bookingRequest{EventID: e.ID, Class: "VIP", Quantity: 2}
	resp, body := f.do(t, http.MethodPost, "/v1/bookings", "alice", req, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, replay := f.do(t, http.MethodPost, "/v1/bookings", "alice", req, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, string(body), string(replay))

	var b bookingResponse
	require.NoError(t, json.Unmarshal(body, &b))

	resp, body = f.do(t, http.MethodPost, "/v1/bookings/"+b.ID.String()+"/payment", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodGet, "/v1/events/"+e.ID.String()+"/capacity", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view inventory.CapacityView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, 1, view.TotalRemaining)

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "ledger.booking.completed", records[len(records)-1].EventType)

	resp, body = f.do(t, http.MethodPost, "/v1/bookings/"+b.ID.String()+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got, err := repo.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.VIP.Remaining)
}
