package cron

import (
	"context"
	"os"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/campaign"
)

const (
	AppSource = "mailsync-cron"

	// GroupCampaigns serializes jobs that write campaign rows
	GroupCampaigns = "campaigns"
	// GroupMailbox guards the failsafe poll
	GroupMailbox = "mailbox"
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupCampaigns: new(sync.Mutex),
		GroupMailbox:   new(sync.Mutex),
	},
}

type CampaignScheduler interface {
	Tick(ctx context.Context) (*campaign.TickResult, error)
	PromoteDueScheduled(ctx context.Context) (int64, error)
}

type MailboxPoller interface {
	SyncAll(ctx context.Context) error
}

type CronManager struct {
	cfg       *cron_config.Config
	log       logger.Logger
	cron      *cronv3.Cron
	stopCh    chan struct{}
	stopOnce  sync.Once
	jobIDs    map[string]cronv3.EntryID
	scheduler CampaignScheduler
	poller    MailboxPoller
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, scheduler CampaignScheduler, poller MailboxPoller) *CronManager {
	if cfg == nil {
		cfg = &cron_config.Config{}
	}
	return &CronManager{
		cfg:       cfg,
		log:       log,
		stopCh:    make(chan struct{}),
		jobIDs:    make(map[string]cronv3.EntryID),
		scheduler: scheduler,
		poller:    poller,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			// Wait for jobs to finish
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		if err := cm.addJob(c, "heartbeat", cm.cfg.CronScheduleHeartbeat, "", func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		}); err != nil {
			return err
		}
	}

	if cm.scheduler != nil && cm.cfg.CronScheduleCampaignTick != "" {
		if err := cm.addJob(c, "campaign_tick", cm.cfg.CronScheduleCampaignTick, GroupCampaigns, cm.tickCampaigns); err != nil {
			return err
		}
	}

	if cm.scheduler != nil && cm.cfg.CronSchedulePromoteScheduled != "" {
		if err := cm.addJob(c, "promote_scheduled", cm.cfg.CronSchedulePromoteScheduled, GroupCampaigns, cm.promoteScheduled); err != nil {
			return err
		}
	}

	if cm.poller != nil && cm.cfg.CronScheduleMailboxPoll != "" {
		if err := cm.addJob(c, "mailbox_poll", cm.cfg.CronScheduleMailboxPoll, GroupMailbox, cm.pollMailboxes); err != nil {
			return err
		}
	}
	return nil
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule, group string, job func()) error {
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if group != "" {
			jobLocks.locks[group].Lock()
			defer jobLocks.locks[group].Unlock()
		}
		job()
	})
	if err != nil {
		cm.log.Errorf("Could not add %s cron job: %v", name, err)
		return err
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	// seconds field enabled, overlapping runs skipped
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func jobContext() context.Context {
	return utils.SetAppSourceInContext(context.Background(), AppSource)
}

func (cm *CronManager) tickCampaigns() {
	span, ctx := tracing.StartTracerSpan(jobContext(), "CronManager.tickCampaigns")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	result, err := cm.scheduler.Tick(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Campaign tick failed: %v", err)
		return
	}
	if result.Skipped {
		cm.log.Debug("Campaign tick skipped, previous tick still running")
	}
}

func (cm *CronManager) promoteScheduled() {
	span, ctx := tracing.StartTracerSpan(jobContext(), "CronManager.promoteScheduled")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if _, err := cm.scheduler.PromoteDueScheduled(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to promote scheduled campaigns: %v", err)
	}
}

func (cm *CronManager) pollMailboxes() {
	span, ctx := tracing.StartTracerSpan(jobContext(), "CronManager.pollMailboxes")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.poller.SyncAll(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failsafe mailbox poll failed: %v", err)
	}
}
