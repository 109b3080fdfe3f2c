package services

import (
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/campaign"
	"github.com/customeros/mailsync/services/events"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/mailbox_sync"
	"github.com/customeros/mailsync/services/smtp"
	"github.com/customeros/mailsync/services/tokens"
	"github.com/customeros/mailsync/services/tracking"
)

type Services struct {
	EventsService     *events.EventsService
	Renderer          *tokens.Renderer
	Codec             *tracking.Codec
	Transport         *smtp.Transport
	SyncEngine        *mailbox_sync.Engine
	ConnectionManager *imap.Manager
	Scheduler         *campaign.Scheduler
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) *Services {
	// events
	publisherConfig := &events.PublisherConfig{
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		BufferSize:          events.DefaultBufferSize,
	}
	eventsService := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)

	renderer := tokens.NewRenderer()
	codec := tracking.NewCodec(cfg.AppConfig.TrackingPublicUrl, cfg.AppConfig.TrackingSecret)
	transport := smtp.NewTransport(cfg.CampaignConfig)

	engine := mailbox_sync.NewEngine(
		repos.SyncStateRepository,
		repos.MailMessageRepository,
		repos.ContactRepository,
		eventsService.Sink,
		log,
		mailbox_sync.WithReplyRecorder(repository.CampaignReplyRecorder(repos.CampaignRepository)),
	)

	manager := imap.NewManager(
		cfg.SyncConfig,
		imap.NewDialer(cfg.SyncConfig),
		engine,
		repos.SettingsRepository,
		repos.SyncStateRepository,
		log,
	)

	scheduler := campaign.NewScheduler(
		cfg.CampaignConfig,
		repos.CampaignRepository,
		repos.SettingsRepository,
		repos.ContactRepository,
		transport,
		renderer,
		codec,
		log,
	)

	return &Services{
		EventsService:     eventsService,
		Renderer:          renderer,
		Codec:             codec,
		Transport:         transport,
		SyncEngine:        engine,
		ConnectionManager: manager,
		Scheduler:         scheduler,
	}
}

// Close stops account workers before the broker connection goes away.
func (s *Services) Close() error {
	if s.ConnectionManager != nil {
		s.ConnectionManager.Stop()
	}
	if s.EventsService != nil {
		return s.EventsService.Close()
	}
	return nil
}
