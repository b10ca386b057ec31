package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/karangupta982/smart-event-booking-system/allocation"
	"github.com/karangupta982/smart-event-booking-system/broadcast"
	"github.com/karangupta982/smart-event-booking-system/db"
	"github.com/karangupta982/smart-event-booking-system/http"
	"github.com/karangupta982/smart-event-booking-system/message"
	"github.com/karangupta982/smart-event-booking-system/subscription"
)

type Service struct {
	addr       string
	forwarder  *broadcast.Forwarder
	httpRouter *echo.Echo
	msgRouter  *message.Router
}

func New(
	logger watermill.LoggerAdapter,
	redisClient *redis.Client,
	dbConn *sqlx.DB,
	addr string,
) (*Service, error) {
	fwd, err := broadcast.NewForwarder(dbConn, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	registry := subscription.NewRegistry(logger)

	msgRouter, err := message.NewRouter(message.RouterDeps{
		Logger:      logger,
		RedisClient: redisClient,
		Registry:    registry,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	allocator := allocation.NewAllocator(
		db.NewAllocationStore(dbConn),
		broadcast.NewOutboxBroadcaster(logger),
	)

	httpRouter := http.NewRouter(http.RouterDeps{
		Allocator:   allocator,
		BookingRepo: db.NewBookingRepo(dbConn),
		EventRepo:   db.NewEventRepo(dbConn),
		Registry:    registry,
	})

	return &Service{
		addr:       addr,
		forwarder:  fwd,
		httpRouter: httpRouter,
		msgRouter:  msgRouter,
	}, nil
}

func (s Service) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := s.forwarder.Run(runCtx); err != nil {
			return fmt.Errorf("running forwarder: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		// Wait for message router
		<-s.msgRouter.Running()

		logrus.Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
