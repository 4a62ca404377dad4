package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/platform"
)

// siteMissingRe matches drop-site output for a target that is already gone.
var siteMissingRe = regexp.MustCompile(`(?i)\bdoes not exist\b`)

type CreateSiteParams struct {
	Name       string
	AdminEmail string
	// AdminPassword is generated when empty.
	AdminPassword string
	Apps          []string
}

// CreateSite provisions a new site and installs its apps. The site is only
// registered once the base site exists; app install failures are reported
// per app and leave the site active.
func (o *Orchestrator) CreateSite(ctx context.Context, p CreateSiteParams) (site *model.Site, err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())

	if err := validateName(p.Name); err != nil {
		return nil, err
	}
	release, err := o.locks.Acquire(ctx, p.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	// Once the lock is held the caller can no longer abort the operation:
	// the runtime and the registry must end up agreeing.
	ctx = context.WithoutCancel(ctx)

	exists, err := o.registry.Exists(p.Name)
	if err != nil {
		return nil, fmt.Errorf("check registry for %s: %w", p.Name, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, p.Name)
	}

	apps := p.Apps
	if len(apps) == 0 {
		apps = o.cfg.DefaultApps
	}
	password := p.AdminPassword
	if password == "" {
		password = platform.NewSecret(16)
	}

	log := o.logger.With().Str("site", p.Name).Logger()
	o.setStatus(p.Name, model.StatusProvisioning)
	defer o.clearStatus(p.Name)

	args := []string{
		"new-site", p.Name,
		"--admin-password", password,
		"--db-name=" + platform.DatabaseName(p.Name),
	}
	if o.cfg.DBRootPassword != "" {
		args = append(args, "--mariadb-root-password="+o.cfg.DBRootPassword)
	}
	args = append(args, "--no-mariadb-socket")

	log.Info().Msg("creating site")
	if _, err := o.bench(ctx, "new-site", args...); err != nil {
		log.Error().Err(err).Msg("site creation failed")
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	if err := o.registry.Add(p.Name); err != nil {
		log.Error().Err(err).Msg("site created but could not be registered")
		return nil, fmt.Errorf("%w: register %s: %w", ErrProvisioningFailed, p.Name, err)
	}

	created := o.now().UTC()
	site = &model.Site{
		Name:       p.Name,
		AdminEmail: p.AdminEmail,
		Apps:       []string{},
		Status:     model.StatusActive,
		CreatedAt:  &created,
	}

	o.setStatus(p.Name, model.StatusAppsInstalling)
	for _, app := range apps {
		res, err := o.bench(ctx, "install-app", "--site", p.Name, "install-app", app)
		install := model.AppInstall{App: app, Installed: err == nil}
		if res != nil {
			install.Output = res.Output
		}
		if err != nil {
			if install.Output == "" {
				install.Output = err.Error()
			}
			log.Warn().Err(err).Str("app", app).Msg("app install failed")
		} else {
			site.Apps = append(site.Apps, app)
		}
		site.AppInstalls = append(site.AppInstalls, install)
	}

	log.Info().Strs("apps", site.Apps).Msg("site created")
	return site, nil
}

// DeleteSite drops a registered site and unregisters it. Output saying the
// site does not exist counts as success so that a failed unregister can be
// retried.
func (o *Orchestrator) DeleteSite(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	release, err := o.lockRegistered(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	log := o.logger.With().Str("site", name).Logger()
	o.setStatus(name, model.StatusDeleting)
	defer o.clearStatus(name)

	args := []string{"drop-site", name}
	if o.cfg.DBRootPassword != "" {
		args = append(args, "--mariadb-root-password="+o.cfg.DBRootPassword)
	}
	args = append(args, "--force")

	log.Info().Msg("deleting site")
	if _, err := o.bench(ctx, "drop-site", args...); err != nil {
		var stepErr *executor.StepError
		if !errors.As(err, &stepErr) || stepErr.TimedOut || !siteMissingRe.MatchString(stepErr.Output) {
			log.Error().Err(err).Msg("site deletion failed")
			return fmt.Errorf("%w: %w", ErrDeletionFailed, err)
		}
		log.Warn().Str("output", stepErr.Output).Msg("site already dropped, unregistering")
	}

	if err := o.registry.Remove(name); err != nil {
		return fmt.Errorf("%w: unregister %s: %w", ErrDeletionFailed, name, err)
	}
	log.Info().Msg("site deleted")
	return nil
}

// MigrateSite runs pending migrations of a registered site.
func (o *Orchestrator) MigrateSite(ctx context.Context, name string) (result *model.MigrationResult, err error) {
	defer func(start time.Time) { observe("migrate", start, err) }(time.Now())

	release, err := o.lockRegistered(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	o.setStatus(name, model.StatusMigrating)
	defer o.clearStatus(name)

	log := o.logger.With().Str("site", name).Logger()
	log.Info().Msg("migrating site")
	if _, err := o.bench(ctx, "migrate", "--site", name, "migrate"); err != nil {
		log.Error().Err(err).Msg("migration failed")
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return &model.MigrationResult{Site: name, CompletedAt: o.now().UTC()}, nil
}

// GetSite returns a registered site with its installed apps. It does not
// take the site lock and reports the status of any running operation.
func (o *Orchestrator) GetSite(ctx context.Context, name string) (*model.Site, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := o.requireRegistered(name); err != nil {
		return nil, err
	}

	res, err := o.bench(ctx, "list-apps", "--site", name, "list-apps")
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", name, err)
	}

	return &model.Site{
		Name:   name,
		Apps:   parseApps(res.Output),
		Status: o.currentStatus(name),
	}, nil
}

// ListSites returns registered site names in registry order.
func (o *Orchestrator) ListSites(_ context.Context) ([]string, error) {
	names, err := o.registry.List()
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// parseApps reads list-apps output: one app per line, optionally followed by
// version details.
func parseApps(output string) []string {
	apps := []string{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		apps = append(apps, fields[0])
	}
	return apps
}
