// Package health reports whether the alert services can reach their stores.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type entry struct {
	checker  Checker
	optional bool
}

// CheckerRegistry aggregates dependency checks. A failing required check
// makes the service unhealthy; a failing optional one only degrades it.
type CheckerRegistry struct {
	entries []entry
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.entries = append(r.entries, entry{checker: checker})
}

// RegisterOptional adds a dependency the service can run without, e.g.
// alert history storage.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.entries = append(r.entries, entry{checker: checker, optional: true})
}

// Check runs every checker concurrently under a shared timeout.
func (r *CheckerRegistry) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(r.entries))
		overall = StatusHealthy
	)
	var g errgroup.Group
	for _, e := range r.entries {
		g.Go(func() error {
			start := time.Now()
			err := e.checker.Check(ctx)
			res := CheckResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds(), Timestamp: time.Now()}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Message = err.Error()
				res.Status = StatusUnhealthy
				if e.optional {
					res.Status = StatusDegraded
				}
				overall = worse(overall, res.Status)
			}
			results[e.checker.Name()] = res
			return nil
		})
	}
	_ = g.Wait()

	return Health{Status: overall, Timestamp: time.Now(), Checks: results}
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler serves the registry. Degraded still answers 200 so load balancers
// keep routing to the instance.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := r.Check(c.Request.Context())
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	}
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name  string
	check func(ctx context.Context) error
}

func NewCheckFunc(name string, check func(ctx context.Context) error) CheckFunc {
	return CheckFunc{name: name, check: check}
}

func (f CheckFunc) Name() string { return f.name }

func (f CheckFunc) Check(ctx context.Context) error {
	if err := f.check(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", f.name, err)
	}
	return nil
}

// Postgres checks the notification store and user directory.
func Postgres(db *sql.DB) Checker {
	return NewCheckFunc("postgresql", db.PingContext)
}

// Redis checks the rate limit, attempt counter and broadcast store.
func Redis(client redis.UniversalClient) Checker {
	return NewCheckFunc("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Mongo checks the alert history store.
func Mongo(client *mongo.Client) Checker {
	return NewCheckFunc("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
}
