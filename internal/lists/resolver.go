package lists

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"verdict/internal/config"
	"verdict/internal/constants"
	"verdict/internal/logger"
	"verdict/pkg/circuitbreaker"
	"verdict/pkg/metrics"
)

// Resolver fetches the members of one named set used by rule membership
// tests. List names are not validated against a catalog: an unknown or empty
// list resolves to the empty set, so membership tests against it are simply
// false. Resolution failures are returned to the caller and isolated per rule
// by the execution engine.
type Resolver interface {
	ResolveList(ctx context.Context, name string) ([]interface{}, error)
}

// RedisResolver reads each list from the Redis set at list:<name>. With a
// breaker attached, calls to a degraded Redis fail fast instead of stalling
// every evaluation.
type RedisResolver struct {
	client  *redis.Client
	breaker *circuitbreaker.Wrapper
	timeout time.Duration
	logger  logger.Logger
}

func NewRedisResolver(client *redis.Client, timeout time.Duration, log logger.Logger) *RedisResolver {
	if timeout <= 0 {
		timeout = constants.DefaultListResolutionTimeout
	}
	return &RedisResolver{
		client:  client,
		breaker: circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("redis-lists")),
		timeout: timeout,
		logger:  log,
	}
}

// NewRedisResolverWithBreaker builds the resolver with breaker thresholds
// taken from service configuration instead of the defaults.
func NewRedisResolverWithBreaker(client *redis.Client, timeout time.Duration, cbCfg config.CircuitBreakerConfig, log logger.Logger) *RedisResolver {
	r := NewRedisResolver(client, timeout, log)
	r.breaker = circuitbreaker.NewWrapper(circuitbreaker.Config{
		Name:        "redis-lists",
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbCfg.MinRequests && failureRatio >= cbCfg.FailureRatio
		},
	})
	return r
}

func (r *RedisResolver) ResolveList(ctx context.Context, name string) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.client.SMembers(ctx, constants.ListKeyPrefix+name).Result()
	})
	r.breaker.RecordRequest(err == nil)
	if err != nil {
		metrics.ListResolutionErrorsTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("failed to resolve list %q: %w", name, err)
	}

	strs := result.([]string)
	members := make([]interface{}, len(strs))
	for i, s := range strs {
		members[i] = s
	}
	return members, nil
}
