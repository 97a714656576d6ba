// Graceful shutdown tests in Berserk.

package cleanup

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"Berserk/pkg/log"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during cleanup testing.
var logger log.Logger

// Global context
var ctx context.Context = context.Background()

// Sets up resources before testing graceful shutdown in Berserk.
func setup() {
	// Load test.env
	enverr := godotenv.Load("../../config/test.env")
	if enverr != nil {
		// Error during loading test.env, abort test run immediately
		os.Exit(4)
	}
	logger = log.New(os.Getenv("VERSION"))
	logger.Info().Msg("Test resources setup successful.")
}

func TestMain(m *testing.M) {
	// Setting up Resources
	setup()
	// Running the tests
	testExitCode := m.Run()
	// Exit
	os.Exit(testExitCode)
}

func TestGracefulShutdownSIGINT(t *testing.T) {
	var closedChannels int32

	// Send SIGINT signal to test graceful shutdown
	go func(logger log.Logger) {
		time.Sleep(100 * time.Millisecond)
		logger.Info().Msg("Sending SIGINT signal")
		syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}(logger)

	// Graceful shutdown of the Berserk client triggered due to system interruptions
	wait := GracefulShutdown(ctx, logger, 5*time.Second, map[string]Operation{
		"Channel-manager": func(ctx context.Context) error {
			atomic.AddInt32(&closedChannels, 1)
			return nil
		},
		"Notification-store": func(ctx context.Context) error {
			atomic.AddInt32(&closedChannels, 1)
			return nil
		},
	})

	select {
	case <-wait:
		assert.Equal(t, int32(2), atomic.LoadInt32(&closedChannels))
	case <-time.After(10 * time.Second):
		assert.FailNow(t, "Graceful shutdown didn't complete in time")
	}
}
