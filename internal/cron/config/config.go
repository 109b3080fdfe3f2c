package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Campaign batch tick, every 30 seconds
	CronScheduleCampaignTick string `env:"CRON_SCHEDULE_CAMPAIGN_TICK" envDefault:"*/30 * * * * *"`
	// Failsafe mailbox poll, every 5 minutes
	CronScheduleMailboxPoll string `env:"CRON_SCHEDULE_MAILBOX_POLL" envDefault:"0 */5 * * * *"`
	// Scheduled campaign promotion, every minute
	CronSchedulePromoteScheduled string `env:"CRON_SCHEDULE_PROMOTE_SCHEDULED" envDefault:"0 * * * * *"`
}
