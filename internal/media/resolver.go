package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ErrUnsupported is returned for attachments that cannot be turned into text.
var ErrUnsupported = errors.New("media: unsupported attachment")

// Resolver converts an attachment URL into text for the conversation.
type Resolver struct {
	downloader  *Downloader
	transcriber Transcriber
	archiver    *Archiver
	dir         string
	logger      *logging.Logger
	now         func() time.Time
}

// ResolverConfig wires the resolver collaborators. Archiver may be nil.
type ResolverConfig struct {
	Downloader  *Downloader
	Transcriber Transcriber
	Archiver    *Archiver
	Dir         string
	Logger      *logging.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Transcriber == nil {
		panic("media: transcriber cannot be nil")
	}
	if cfg.Downloader == nil {
		cfg.Downloader = NewDownloader(nil, 0)
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Resolver{
		downloader:  cfg.Downloader,
		transcriber: cfg.Transcriber,
		archiver:    cfg.Archiver,
		dir:         cfg.Dir,
		logger:      cfg.Logger.Component("media"),
		now:         time.Now,
	}
}

// Resolve returns the text carried by the attachment. Images yield "" and
// no error; unsupported kinds return ErrUnsupported.
func (r *Resolver) Resolve(ctx context.Context, userID, mediaURL string) (string, error) {
	kind := Classify(mediaURL)
	switch kind {
	case KindNone:
		return "", nil
	case KindImage:
		r.logger.Info("image attachment received", "user_id", userID)
		return "", nil
	case KindAudio:
		return r.transcribe(ctx, userID, mediaURL)
	case KindPDF:
		data, err := r.downloader.Fetch(ctx, mediaURL)
		if err != nil {
			return "", err
		}
		return ExtractPDFText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, Extension(mediaURL))
	}
}

func (r *Resolver) transcribe(ctx context.Context, userID, mediaURL string) (string, error) {
	name := fmt.Sprintf("audio_%s_%d.%s", userID, r.now().UnixMilli(), Extension(mediaURL))
	dst := filepath.Join(r.dir, name)
	if err := r.downloader.Download(ctx, mediaURL, dst); err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove audio file", "path", dst, "error", err)
		}
	}()

	if r.archiver.Enabled() {
		if _, err := r.archiver.Archive(ctx, userID, dst); err != nil {
			r.logger.Warn("audio archive failed", "user_id", userID, "error", err)
		}
	}
	return r.transcriber.Transcribe(ctx, dst)
}
