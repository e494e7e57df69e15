package mqtt

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
)

// Broker is an in-process MQTT broker for single-box deployments where no
// external broker is available. The service's own client and the push
// gateway connect to it like any other broker.
type Broker struct {
	server  *mochi.Server
	address string
}

// NewBroker creates an embedded broker listening on cfg.Address.
// Every client is allowed; deploy behind a trusted network only.
//
// Parameters:
//   - cfg: Embedded broker section of the MQTT config
//   - logger: Logger for broker events (nil uses slog.Default)
//
// Returns:
//   - *Broker: Broker ready to Start
//   - error: ErrBrokerFailed if the listener or hooks cannot be registered
func NewBroker(cfg config.EmbeddedBrokerConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	server := mochi.New(&mochi.Options{
		Logger:       logger.With("component", "mqtt-broker"),
		InlineClient: true,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrBrokerFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: adding listener %s: %w", ErrBrokerFailed, cfg.Address, err)
	}

	return &Broker{server: server, address: cfg.Address}, nil
}

// Start begins accepting connections. It returns once the listeners are
// serving.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerFailed, err)
	}
	return nil
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Close stops the broker and disconnects all clients.
func (b *Broker) Close() error {
	if b == nil || b.server == nil {
		return nil
	}
	return b.server.Close()
}
