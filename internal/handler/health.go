package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Dependency is one backing service probed by /readyz.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

func PostgresDependency(pool *pgxpool.Pool) Dependency {
	return Dependency{Name: "postgres", Ping: pool.Ping}
}

func RedisDependency(client *redis.Client) Dependency {
	return Dependency{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

func RabbitMQDependency(conn *amqp.Connection) Dependency {
	return Dependency{Name: "rabbitmq", Ping: func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}}
}

type HealthHandler struct {
	deps []Dependency
}

func NewHealthHandler(deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	resp := gin.H{"status": "ok"}
	code := http.StatusOK
	for _, d := range h.deps {
		if err := d.Ping(ctx); err != nil {
			resp[d.Name] = "unavailable"
			resp["status"] = "error"
			code = http.StatusServiceUnavailable
			continue
		}
		resp[d.Name] = "connected"
	}
	c.JSON(code, resp)
}
