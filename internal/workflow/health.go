package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/platform"
)

// HealthCheck probes a site's process and its database independently and
// reports both. Registration is not required, so that a half-created or
// half-deleted site can still be diagnosed.
func (o *Orchestrator) HealthCheck(ctx context.Context, name string) (*model.Health, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	h := &model.Health{Site: name}

	var g errgroup.Group
	g.Go(func() error {
		registered, err := o.registry.Exists(name)
		if err != nil {
			o.logger.Warn().Err(err).Str("site", name).Msg("registry unreadable during health check")
		}
		h.Registered = registered
		return nil
	})
	g.Go(func() error {
		h.ProcessStatus = o.probeProcess(ctx, name)
		return nil
	})
	g.Go(func() error {
		h.DataStoreStatus = o.probeDataStore(ctx, name)
		return nil
	})
	_ = g.Wait()

	h.HTTPStatus = http.StatusServiceUnavailable
	if h.ProcessStatus == model.ProcessHealthy {
		h.HTTPStatus = http.StatusOK
	}
	h.CheckedAt = o.now().UTC()
	return h, nil
}

func (o *Orchestrator) probeProcess(ctx context.Context, name string) string {
	_, err := o.bench(ctx, "list-apps", "--site", name, "list-apps")
	switch {
	case err == nil:
		return model.ProcessHealthy
	case errors.Is(err, executor.ErrStepFailed):
		return model.ProcessUnhealthy
	default:
		o.logger.Warn().Err(err).Str("site", name).Msg("process probe could not run")
		return model.ProcessUnknown
	}
}

func (o *Orchestrator) probeDataStore(ctx context.Context, name string) string {
	if o.datastore == nil {
		return "error: datastore probe not configured"
	}
	ok, err := o.datastore.DatabaseExists(ctx, platform.DatabaseName(name))
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if ok {
		return model.DataStoreOnline
	}
	return model.DataStoreOffline
}

// Stats summarizes the platform. Each figure is best effort: a source that
// cannot be read contributes zero and is logged.
func (o *Orchestrator) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{}

	var g errgroup.Group
	g.Go(func() error {
		names, err := o.registry.List()
		if err != nil {
			o.logger.Warn().Err(err).Msg("stats: registry unreadable")
			return nil
		}
		st.TotalSites = len(names)
		return nil
	})
	if o.containers != nil {
		g.Go(func() error {
			n, err := o.containers.RunningContainers(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Msg("stats: container count unavailable")
				return nil
			}
			st.RunningContainers = n
			return nil
		})
	}
	if o.datastore != nil {
		g.Go(func() error {
			n, err := o.datastore.CountDatabases(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Msg("stats: database count unavailable")
				return nil
			}
			st.Databases = n
			return nil
		})
	}
	_ = g.Wait()

	st.Timestamp = o.now().UTC()
	return st, nil
}
