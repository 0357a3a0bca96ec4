package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openfoodnetwork/ofn-backend/api/responses"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

// maxPeekBytes bounds how much of a JSON body is buffered to find the email.
const maxPeekBytes = 64 << 10

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitScope names what a counter is keyed on.
type RateLimitScope string

const (
	ScopeIP    RateLimitScope = "ip"
	ScopeEmail RateLimitScope = "email"
	ScopeUser  RateLimitScope = "user"
)

type RateLimitRule struct {
	Scope RateLimitScope
	Limit int
}

// RateLimitPolicy is a fixed window shared by all of its rules. A request is
// rejected as soon as one rule's counter passes its limit.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	rules  []RateLimitRule
}

func NewRateLimitPolicy(name string, window time.Duration, rules ...RateLimitRule) RateLimitPolicy {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Limit > 0 {
			active = append(active, rule)
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, rules: active}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && len(p.rules) > 0
}

// counter names the window counter; the store adds its own namespace.
func (p RateLimitPolicy) counter(scope RateLimitScope, subject string) string {
	return p.name + ":" + string(scope) + ":" + subject
}

func (p RateLimitPolicy) needsBody() bool {
	for _, rule := range p.rules {
		if rule.Scope == ScopeEmail {
			return true
		}
	}
	return false
}

// RateLimit counts requests per policy rule in redis. Subjects that cannot be
// determined (no email in the body, anonymous caller) are not counted.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var email string
			if policy.needsBody() {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				email = extractEmail(body)
			}

			for _, rule := range policy.rules {
				subject := subjectFor(r, rule.Scope, email)
				if subject == "" {
					continue
				}
				allowed, count, err := store.FixedWindowAllow(ctx, policy.counter(rule.Scope, subject), int64(rule.Limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					rejectRateLimited(ctx, logg, w, policy, rule, subject, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func subjectFor(r *http.Request, scope RateLimitScope, email string) string {
	switch scope {
	case ScopeIP:
		return clientIP(r)
	case ScopeEmail:
		if email == "" {
			return ""
		}
		return hashValue(email)
	case ScopeUser:
		if id, ok := UserIDFromContext(r.Context()); ok {
			return id.String()
		}
	}
	return ""
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, rule RateLimitRule, subject string, count int64) {
	if logg != nil {
		fields := map[string]any{
			"policy":         policy.name,
			"scope":          rule.Scope,
			"attempts":       count,
			"limit":          rule.Limit,
			"window_seconds": int(policy.window.Seconds()),
			"subject":        subject,
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
