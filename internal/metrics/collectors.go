package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowOperationsTotal counts orchestrator operations by outcome
	// ("success", "not_found", "already_exists", "failed", "infrastructure").
	WorkflowOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitehost_workflow_operations_total",
			Help: "Total number of site lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	WorkflowOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitehost_workflow_operation_duration_seconds",
			Help:    "Site lifecycle operation duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	BackupArchiveBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitehost_backup_archive_bytes",
		Help:    "Size of produced backup archives in bytes",
		Buckets: prometheus.ExponentialBuckets(1<<20, 4, 10),
	})

	BackupUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitehost_backup_uploads_total",
			Help: "Total number of backup upload attempts by final upload state",
		},
		[]string{"state"},
	)

	RetentionDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitehost_backup_retention_deleted_total",
		Help: "Total number of backup archives removed by retention",
	})

	SchedulerRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitehost_scheduler_runs_total",
		Help: "Total number of scheduled backup passes",
	})

	SchedulerSiteBackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitehost_scheduler_site_backups_total",
			Help: "Total number of per-site backups attempted by the scheduler",
		},
		[]string{"result"},
	)

	SchedulerLastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitehost_scheduler_last_run_timestamp_seconds",
		Help: "Unix time at which the last scheduled pass finished",
	})

	SchedulerLastRunFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitehost_scheduler_last_run_failures",
		Help: "Number of sites whose backup failed in the last scheduled pass",
	})
)
