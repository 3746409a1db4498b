package main

import (
	"time"

	"submission-workflow/internal/common/camunda"
	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core/documents"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/core/lifecycle"
	"submission-workflow/internal/notification"

	gd "submission-workflow/internal/workers/documents/generate-document"
	sfs "submission-workflow/internal/workers/esign/send-for-signature"
	cfp "submission-workflow/internal/workers/finance/calculate-finance-plan"
	sn "submission-workflow/internal/workers/notification/send-notification"
	ab "submission-workflow/internal/workers/submission/approve-bind"
	rs "submission-workflow/internal/workers/submission/route-submission"
)

type workerServices struct {
	submissions *lifecycle.Service
	documents   *documents.Service
	signatures  *esign.Gate
	calculator  cfp.Calculator
	notifier    *notification.Notifier
}

// timeoutOr caps a handler's timeout at the job lease so the handler gives up
// before the broker hands the job to another worker.
func timeoutOr(wcfg config.WorkerConfig, def time.Duration) time.Duration {
	lease := config.GetDuration(wcfg.Timeout)
	if lease > 0 && lease < def {
		return lease
	}
	return def
}

func startWorkers(m *camunda.WorkerManager, cfg *config.Config, svc workerServices, log logger.Logger) {
	if wcfg, ok := cfg.Workers[rs.TaskType]; ok {
		c := rs.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(rs.TaskType, wcfg, rs.NewHandler(c, svc.submissions, log).Handle)
	}
	if wcfg, ok := cfg.Workers[ab.TaskType]; ok {
		c := ab.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(ab.TaskType, wcfg, ab.NewHandler(c, svc.submissions, log).Handle)
	}
	if wcfg, ok := cfg.Workers[gd.TaskType]; ok {
		c := gd.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(gd.TaskType, wcfg, gd.NewHandler(c, svc.documents, log).Handle)
	}
	if wcfg, ok := cfg.Workers[sfs.TaskType]; ok {
		c := sfs.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(sfs.TaskType, wcfg, sfs.NewHandler(c, svc.signatures, log).Handle)
	}
	if wcfg, ok := cfg.Workers[cfp.TaskType]; ok {
		c := cfp.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(cfp.TaskType, wcfg, cfp.NewHandler(c, svc.calculator, log).Handle)
	}
	if wcfg, ok := cfg.Workers[sn.TaskType]; ok {
		c := sn.LoadConfig()
		c.Timeout = timeoutOr(wcfg, c.Timeout)
		m.Start(sn.TaskType, wcfg, sn.NewHandler(c, svc.notifier, log).Handle)
	}
}
