package bootstrap

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/clinic-concierge/internal/bookings"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/manychat"
	"github.com/wolfman30/clinic-concierge/internal/media"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/tools"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// PipelineDeps are the already-connected collaborators of the message
// pipeline. Pool and S3 are optional.
type PipelineDeps struct {
	Config  *appconfig.Config
	Steps   conversation.StepStore
	Google  *GoogleClients
	Pool    *pgxpool.Pool
	S3      media.S3API
	Metrics *metrics.ConversationMetrics
	Logger  *logging.Logger
}

// Pipeline exposes the parts cmd/api mounts and shuts down.
type Pipeline struct {
	Debouncer *conversation.Debouncer
	Webhook   *conversation.WebhookHandler
	Admin     *conversation.AdminHandler
	Processor *conversation.Processor
}

// BuildPipeline wires webhook intake, debouncing, the onboarding script,
// assistant runs and tool dispatch.
func BuildPipeline(deps PipelineDeps) (*Pipeline, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Steps == nil {
		return nil, fmt.Errorf("bootstrap: step store is required")
	}
	if deps.Google == nil || deps.Google.Calendar == nil {
		return nil, fmt.Errorf("bootstrap: google calendar is required")
	}
	if strings.TrimSpace(cfg.OpenAIAssistantID) == "" {
		return nil, fmt.Errorf("bootstrap: OPENAI_ASSISTANT_ID is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load timezone %q: %w", cfg.Timezone, err)
	}

	profiles := clinic.NewProfiles(cfg)
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	assistant := conversation.NewOpenAIAssistant(openaiClient, cfg.OpenAIAssistantID)

	messenger := BuildMessenger(cfg, logger)

	ledger := buildBookingsService(deps, logger)
	var bookingLister conversation.BookingLister
	if deps.Pool != nil {
		bookingLister = bookings.NewRepository(deps.Pool)
	}

	dispatcher := tools.NewDispatcher(tools.Config{
		Calendar:      deps.Google.Calendar,
		Messenger:     messenger,
		Bookings:      ledger,
		Profiles:      profiles,
		Flows:         messenger.Flows(),
		CalendarIDs:   cfg.GoogleCalendarIDs,
		ClinicEmail:   cfg.ClinicEmail,
		ClinicAddress: cfg.ClinicAddress,
		Location:      loc,
		Metrics:       deps.Metrics,
		Logger:        logger,
	})

	driver := conversation.NewRunDriver(conversation.RunDriverConfig{
		Client:       assistant,
		Dispatcher:   dispatcher,
		PollInterval: cfg.RunPollInterval,
		MaxPolls:     cfg.RunMaxPolls,
		Metrics:      deps.Metrics,
		Logger:       logger,
	})
	script := conversation.NewScriptMachine(
		deps.Steps,
		conversation.NewKeywordQuestionDetector(),
		conversation.NewAssistantShortAnswerer(driver),
		logger,
	)

	procCfg := conversation.ProcessorConfig{
		Assistant:   assistant,
		Steps:       deps.Steps,
		Script:      script,
		Driver:      driver,
		Replies:     messenger,
		Subscribers: messenger,
		Location:    loc,
		Logger:      logger,
	}
	if deps.Google.Sheets != nil {
		procCfg.Leads = deps.Google.Sheets
	}
	processor := conversation.NewProcessor(procCfg)

	debouncer := conversation.NewDebouncer(conversation.DebouncerConfig{
		QuietPeriod:  cfg.QuietPeriod,
		FlushTimeout: cfg.FlushTimeout,
		Flush:        processor.Process,
		Metrics:      deps.Metrics,
		Logger:       logger,
	})

	webhook := conversation.NewWebhookHandler(conversation.WebhookConfig{
		Profiles: profiles,
		Media:    BuildMediaResolver(cfg, openaiClient, deps.S3, logger),
		Queue:    debouncer,
		Metrics:  deps.Metrics,
		Logger:   logger,
	})

	logger.Info("conversation pipeline ready",
		"quiet_period", cfg.QuietPeriod.String(),
		"step_store", cfg.StepStore,
		"bookings_db", deps.Pool != nil,
		"sheets", deps.Google.Sheets != nil,
		"media_archive", deps.S3 != nil && cfg.MediaBucket != "",
	)
	return &Pipeline{
		Debouncer: debouncer,
		Webhook:   webhook,
		Admin:     conversation.NewAdminHandler(deps.Steps, bookingLister, logger),
		Processor: processor,
	}, nil
}

// BuildMessenger wires the shared ManyChat client and flow namespaces.
func BuildMessenger(cfg *appconfig.Config, logger *logging.Logger) *manychat.Messenger {
	client := manychat.New(manychat.Config{BaseURL: cfg.ManyChatBaseURL, Logger: logger})
	return manychat.NewMessenger(client, manychat.Flows{
		Reply:          cfg.ManyChatReplyFlow,
		ProcedureImage: cfg.ManyChatImageFlow,
		Assignment:     cfg.ManyChatAssignmentFlow,
	}, logger)
}

// BuildMediaResolver wires download, Whisper transcription and optional S3
// archival of inbound audio.
func BuildMediaResolver(cfg *appconfig.Config, audio media.AudioClient, s3Client media.S3API, logger *logging.Logger) *media.Resolver {
	var archiver *media.Archiver
	if s3Client != nil && cfg.MediaBucket != "" {
		archiver = media.NewArchiver(s3Client, cfg.MediaBucket, logger)
	}
	return media.NewResolver(media.ResolverConfig{
		Downloader:  media.NewDownloader(&http.Client{Timeout: time.Minute}, 0),
		Transcriber: media.NewWhisperTranscriber(audio, cfg.OpenAITranscriptionModel),
		Archiver:    archiver,
		Dir:         cfg.MediaDir,
		Logger:      logger,
	})
}

func buildBookingsService(deps PipelineDeps, logger *logging.Logger) *bookings.Service {
	var (
		store  bookings.Store
		sheets bookings.SheetWriter
	)
	if deps.Pool != nil {
		store = bookings.NewRepository(deps.Pool)
	}
	if deps.Google.Sheets != nil {
		sheets = deps.Google.Sheets
	}
	return bookings.NewService(store, sheets, logger)
}
