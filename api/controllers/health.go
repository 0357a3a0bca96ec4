// Package controllers holds the handlers shared by every API surface.
package controllers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OFN-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency in parallel and reports each result.
// Any failure turns the response into a 503 carrying the same report.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OFN-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks, err := probe(ctx, deps)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependencies unavailable").WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func probe(ctx context.Context, deps map[string]Pinger) (map[string]string, error) {
	names := make([]string, 0, len(deps))
	for name, dep := range deps {
		if dep != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = deps[name].Ping(ctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]string, len(names))
	var errs error
	for i, name := range names {
		if results[i] != nil {
			checks[name] = "down"
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, results[i], name))
			continue
		}
		checks[name] = "ok"
	}
	return checks, errs
}
