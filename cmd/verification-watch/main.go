package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/staylink/verification-service/internal/config"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/syncclient"
)

// pollInterval paces refreshes once the realtime channel has given up.
const pollInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Client.Token == "" {
		logger.Fatal("SYNC_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := syncclient.NewRESTFetcher(cfg.Client.BaseURL, cfg.Client.Token, 10*time.Second)
	store := syncclient.NewStore(fetcher, logger)
	channel := syncclient.NewChannel(store, syncclient.ChannelOptions{
		URL:     cfg.Client.ChannelURL,
		Token:   cfg.Client.Token,
		Backoff: syncclient.BackoffFromConfig(cfg.Client),
		Logger:  logger,
	})
	channel.OnStateChange(func(state syncclient.ConnState) {
		logger.Info("channel state", zap.String("state", string(state)))
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return store.Run(ctx) })

	if err := track(ctx, cfg.Client, fetcher, store); err != nil {
		logger.Fatal("failed to load subjects", zap.Error(err))
	}

	g.Go(func() error {
		err := channel.Run(ctx)
		if !errors.Is(err, domain.ErrChannelUnavailable) {
			return err
		}
		return poll(ctx, store, logger)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case notice := <-store.Notices():
				logger.Info(notice.Message,
					zap.String("subject_id", notice.SubjectID),
					zap.String("subject_kind", string(notice.SubjectKind)),
					zap.String("push_type", string(notice.Type)),
					zap.Int64("sequence", notice.Sequence))
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("watch stopped", zap.Error(err))
	}
}

// track registers the configured subjects. The partner subject's id is only
// known to the server, so it is fetched once up front.
func track(ctx context.Context, cfg config.ClientConfig, fetcher syncclient.Fetcher, store *syncclient.Store) error {
	if cfg.PartnerSubject {
		state, err := fetcher.Fetch(ctx, syncclient.SubjectRef{Kind: domain.SubjectKindPartner})
		if err != nil {
			return err
		}
		if err := store.Replace(ctx, state); err != nil {
			return err
		}
	}
	for _, id := range cfg.PropertyIDs {
		if err := store.Track(ctx, syncclient.SubjectRef{ID: id, Kind: domain.SubjectKindProperty}); err != nil {
			return err
		}
	}
	return nil
}

func poll(ctx context.Context, store *syncclient.Store, logger *zap.Logger) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := store.RefetchAll(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("manual refresh failed", zap.Error(err))
			}
		}
	}
}
