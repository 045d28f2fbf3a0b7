package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitClass string

const (
	RateLimitLogin RateLimitClass = "login"
	RateLimitOTP   RateLimitClass = "otp"
)

type RateLimitRule struct {
	Max     int64
	Window  time.Duration
	Message string
}

const (
	loginMaxAttempts = 5
	loginWindow      = 10 * time.Minute
	otpMaxRequests   = 3
	otpWindow        = 15 * time.Minute
)

func DefaultRateLimitRules() map[RateLimitClass]RateLimitRule {
	return map[RateLimitClass]RateLimitRule{
		RateLimitLogin: {
			Max:     loginMaxAttempts,
			Window:  loginWindow,
			Message: "Too many login attempts from this IP, please try again after 10 minutes",
		},
		RateLimitOTP: {
			Max:     otpMaxRequests,
			Window:  otpWindow,
			Message: "Too many OTP requests from this IP, please try again after 15 minutes",
		},
	}
}

type RateLimitDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	Message    string
}

// RateLimiter keeps fixed-window counters per client IP and route class in
// Redis so every instance sees the same counts.
type RateLimiter struct {
	Redis *redis.Client
	Rules map[RateLimitClass]RateLimitRule
}

func NewRateLimiter(client *redis.Client, rules map[RateLimitClass]RateLimitRule) *RateLimiter {
	if rules == nil {
		rules = DefaultRateLimitRules()
	}
	return &RateLimiter{Redis: client, Rules: rules}
}

func (r *RateLimiter) key(class RateLimitClass, ip string) string {
	return "rate_limit:" + string(class) + ":" + ip
}

// Allow counts one request for ip in class and reports whether it fits the window.
func (r *RateLimiter) Allow(ctx context.Context, class RateLimitClass, ip string) (RateLimitDecision, error) {
	rule, ok := r.Rules[class]
	if !ok {
		return RateLimitDecision{}, fmt.Errorf("unknown rate limit class %q", class)
	}
	key := r.key(class, ip)

	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return RateLimitDecision{}, err
	}
	if attempts == 1 {
		if err := r.Redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			return RateLimitDecision{}, err
		}
	}

	ttl, err := r.Redis.TTL(ctx, key).Result()
	if err != nil {
		return RateLimitDecision{}, err
	}
	if ttl < 0 {
		// A counter without expiry would block the IP forever.
		r.Redis.Expire(ctx, key, rule.Window)
		ttl = rule.Window
	}

	decision := RateLimitDecision{
		Allowed:    attempts <= rule.Max,
		Remaining:  max(rule.Max-attempts, 0),
		RetryAfter: ttl,
	}
	if !decision.Allowed {
		decision.Message = rule.Message
	}
	return decision, nil
}

// Reset clears the counter for ip in class.
func (r *RateLimiter) Reset(ctx context.Context, class RateLimitClass, ip string) {
	r.Redis.Del(ctx, r.key(class, ip))
}
