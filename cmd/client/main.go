// The main file of the Berserk demo client.
// Connects the sync core to a running Berserk server and logs every event
// it receives until interrupted.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"Berserk/internal/config"
	"Berserk/internal/entity"
	"Berserk/internal/notification"
	"Berserk/internal/passport"
	"Berserk/internal/realtime"
	"Berserk/internal/rest"
	"Berserk/pkg/cleanup"
	"Berserk/pkg/log"
)

// Indicates the current version of Berserk.
var Version = "1.0.0"

func init() {
	// Fall back to the dev config when the environment isn't prepared.
	if len(os.Getenv("ENV")) == 0 {
		config.LoadDevConfig()
	}
}

func main() {
	logger := log.New(Version)
	logger.Info().Msg(fmt.Sprintf("Welcome to Berserk: v%s", Version))
	logger.Info().Msg(fmt.Sprintf("Berserk Environment: %s", os.Getenv("ENV")))

	cfg, cfgerr := config.FromEnv()
	if cfgerr != nil {
		logger.Fatal().Err(cfgerr).Msg("Invalid configuration.")
	}

	ctx := context.Background()

	// Session passport, taken from the TOKEN env for the demo.
	store := passport.NewStore(logger)
	if token := os.Getenv("TOKEN"); token != "" {
		if perr := store.Set(entity.Passport{Token: token}); perr != nil {
			logger.Fatal().Err(perr).Msg("Couldn't install the session passport.")
		}
	}

	// Wiring up the sync core.
	norm := realtime.NewNormalizer(logger)
	bus := realtime.NewBus(logger)
	manager := realtime.NewManager(cfg.SocketURL, store, norm, bus, logger)
	restClient := rest.NewClient(cfg.BaseURL, store, logger)
	engine := realtime.NewEngine(store, logger)
	engine.Attach(bus)
	notifier := notification.NewService(restClient, bus, logger)

	// Log every event that comes through the bus.
	bus.Subscribe(realtime.OnAnyChannel(), nil, func(ev entity.Event) {
		logger.Info().Msgf("[%s] %s %v", ev.Scope, ev.Kind, ev.Payload)
	})

	if operr := manager.OpenGlobal(ctx); operr != nil {
		logger.Fatal().Err(operr).Msg("Couldn't open the global channel.")
	}

	// Join a mission room and post a greeting when MISSION_ID is set.
	if raw := os.Getenv("MISSION_ID"); raw != "" {
		missionID, converr := strconv.Atoi(raw)
		if converr != nil {
			logger.Fatal().Err(converr).Msg("MISSION_ID must be numeric.")
		}
		if operr := manager.OpenRoom(ctx, missionID); operr != nil {
			logger.Fatal().Err(operr).Msg("Couldn't open the mission room channel.")
		}
		engine.Send(ctx, realtime.MissionConversation(missionID), "Reporting for duty!", func(ctx context.Context) (realtime.ServerRecord, error) {
			comment, serr := restClient.AddComment(ctx, missionID, "Reporting for duty!")
			if serr != nil {
				return realtime.ServerRecord{}, serr
			}
			return realtime.RecordFromComment(comment), nil
		})
	}

	// Graceful shutdown of the Berserk client triggered due to system interruptions.
	wait := cleanup.GracefulShutdown(ctx, logger, 5*time.Second, map[string]cleanup.Operation{
		"Channel-manager": func(ctx context.Context) error {
			manager.CloseAll()
			return nil
		},
		"Notification-store": func(ctx context.Context) error {
			notifier.Detach()
			return nil
		},
	})
	<-wait
}
