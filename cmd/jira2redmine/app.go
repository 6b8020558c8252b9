package main

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/attachments"
	"github.com/jcatrysse/jira2redmine/internal/config"
	"github.com/jcatrysse/jira2redmine/internal/depresolve"
	"github.com/jcatrysse/jira2redmine/internal/extract"
	"github.com/jcatrysse/jira2redmine/internal/jiraclient"
	"github.com/jcatrysse/jira2redmine/internal/orchestrator"
	"github.com/jcatrysse/jira2redmine/internal/reconcile"
	"github.com/jcatrysse/jira2redmine/internal/redmine"
	"github.com/jcatrysse/jira2redmine/internal/sharepoint"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

// App bundles every component one CLI invocation wires together, built
// once per process from the resolved Config.
type App struct {
	Config config.Config

	Store   *store.Store
	Jira    *jiraclient.Client
	Redmine *redmine.Client

	Extractor   *extract.Extractor
	Snapshotter *redmine.Snapshotter
	Pusher      *redmine.Pusher
	Resolver    *depresolve.Resolver
	Reconciler  *reconcile.Reconciler
	Attachments *attachments.Pipeline

	Orchestrator *orchestrator.Orchestrator
}

// buildApp opens the mapping database, constructs every component, and
// registers every (family, phase) handler with the Orchestrator.
func buildApp(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.MigrateSchema(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	jira := jiraclient.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	rm := redmine.New(cfg.Redmine.BaseURL, cfg.Redmine.APIKey)
	if cfg.Redmine.ExtendedAPIPrefix != "" {
		rm.ExtendedAPIPrefix = cfg.Redmine.ExtendedAPIPrefix
	}

	trackers, err := st.GetTrackerMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracker map: %w", err)
	}
	statuses, err := st.GetStatusMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status map: %w", err)
	}
	priorities, err := st.GetPriorityMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load priority map: %w", err)
	}
	resolver, err := depresolve.Build(ctx, st, trackers, statuses, priorities)
	if err != nil {
		return nil, fmt.Errorf("build dependency resolver: %w", err)
	}

	defaults := reconcile.Defaults{
		ProjectID:    cfg.Defaults.ProjectID,
		TrackerID:    cfg.Defaults.TrackerID,
		StatusID:     cfg.Defaults.StatusID,
		PriorityID:   cfg.Defaults.PriorityID,
		AuthorID:     cfg.Defaults.AuthorID,
		AssignedToID: cfg.Defaults.AssignedToID,
		IsPrivate:    cfg.Defaults.IsPrivate,
		UserStatus:   cfg.Defaults.UserStatus,
	}

	var spCfg *sharepoint.Config
	if cfg.SharePoint.Enabled() {
		spCfg = &sharepoint.Config{
			TenantID:       cfg.SharePoint.TenantID,
			ClientID:       cfg.SharePoint.ClientID,
			ClientSecret:   cfg.SharePoint.ClientSecret,
			SiteID:         cfg.SharePoint.SiteID,
			DriveID:        cfg.SharePoint.DriveID,
			Folder:         cfg.SharePoint.Folder,
			ChunkSizeBytes: cfg.SharePoint.ChunkSizeBytes,
		}
	}

	app := &App{
		Config:      cfg,
		Store:       st,
		Jira:        jira,
		Redmine:     rm,
		Extractor:   extract.New(jira, st),
		Snapshotter: redmine.NewSnapshotter(rm, st),
		Pusher:      redmine.NewPusher(rm, st),
		Resolver:    resolver,
		Reconciler:  reconcile.New(st, resolver, defaults),
		Attachments: attachments.New(st, jira, rm, attachments.Config{
			TmpDir:                cfg.Attachment.WorkingDir,
			PullConcurrency:       cfg.Attachment.PullConcurrency,
			OffloadThresholdBytes: cfg.SharePoint.OffloadThresholdBytes,
			SharePoint:            spCfg,
		}),
	}
	app.Orchestrator = orchestrator.New(st)
	app.registerPhases()
	return app, nil
}

// Close releases the underlying database connection.
func (a *App) Close() error {
	return a.Store.Close()
}
