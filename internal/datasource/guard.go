package datasource

import (
	"context"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guard sequences the protections in front of one upstream endpoint:
// breaker fast-fail, then budget, then rate limit, then the breaker-tracked
// call itself. An open breaker costs neither budget nor limiter tokens.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	budget  *Budget
}

// NewGuard assembles a guard. Limiter and budget may be shared between
// guards when two endpoints live on the same upstream service.
func NewGuard(breaker *gobreaker.CircuitBreaker, limiter *rate.Limiter, budget *Budget) *Guard {
	return &Guard{breaker: breaker, limiter: limiter, budget: budget}
}

// Do runs fn under the guard stack
func (g *Guard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if g.breaker.State() == gobreaker.StateOpen {
		return nil, gobreaker.ErrOpenState
	}
	if err := g.budget.Allow(); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.breaker.Execute(fn)
}
