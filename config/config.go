package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	sagaPkg "github.com/orderwise/orderwise/saga"
)

// Duration wraps time.Duration so SLA windows can be written as "2m" or "120h"
// in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string

	if err := value.Decode(&raw); err != nil {
		return errors.WithStack(err)
	}

	parsed, err := time.ParseDuration(raw)

	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", raw)
	}

	*d = Duration(parsed)

	return nil
}

type Storage struct {
	// Driver is either "mysql" or "pg"
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Broker struct {
	// Kind is either "amqp" or "kafka"
	Kind  string   `yaml:"kind"`
	Addrs []string `yaml:"addrs"`
	// InboundTopic carries responses, checkout events and timeouts for the saga
	InboundTopic string `yaml:"inbound_topic"`
	InboundQueue string `yaml:"inbound_queue"`
	// CommandsTopic receives the commands relayed from the outbox
	CommandsTopic string `yaml:"commands_topic"`
	// NotificationsTopic receives order-status notifications
	NotificationsTopic string `yaml:"notifications_topic"`
}

type Redis struct {
	// Addr is optional, an empty value disables the idempotency cache
	Addr string `yaml:"addr"`
}

type API struct {
	Addr string `yaml:"addr"`
}

type SLA struct {
	Placed     Duration `yaml:"placed"`
	Reserving  Duration `yaml:"reserving"`
	Capturing  Duration `yaml:"capturing"`
	Fulfilling Duration `yaml:"fulfilling"`
	Shipped    Duration `yaml:"shipped"`
}

type Saga struct {
	MaxDeliveryAttempts int  `yaml:"max_delivery_attempts"`
	CommitRetries       int  `yaml:"commit_retries"`
	Workers             uint `yaml:"workers"`
	SLA                 SLA  `yaml:"sla"`
}

type Config struct {
	Storage Storage `yaml:"storage"`
	Broker  Broker  `yaml:"broker"`
	Redis   Redis   `yaml:"redis"`
	API     API     `yaml:"api"`
	Saga    Saga    `yaml:"saga"`
}

func Default() Config {
	return Config{
		Storage: Storage{
			Driver: "mysql",
		},
		Broker: Broker{
			Kind:               "amqp",
			InboundTopic:       "orders.saga",
			InboundQueue:       "orders.saga.queue",
			CommandsTopic:      "orders.commands",
			NotificationsTopic: "orders.notifications",
		},
		API: API{
			Addr: ":8080",
		},
		Saga: Saga{
			MaxDeliveryAttempts: 3,
			CommitRetries:       3,
			Workers:             10,
			SLA: SLA{
				Placed:     Duration(time.Minute * 2),
				Reserving:  Duration(time.Second * 30),
				Capturing:  Duration(time.Minute * 2),
				Fulfilling: Duration(time.Hour * 24),
				Shipped:    Duration(time.Hour * 120),
			},
		},
	}
}

// Load reads the yaml file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)

	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Storage.Driver != string(sagaPkg.MYSQLDriver) && c.Storage.Driver != string(sagaPkg.PGDriver) {
		return errors.Errorf("unknown storage driver %q, expected mysql or pg", c.Storage.Driver)
	}

	if c.Storage.DSN == "" {
		return errors.New("storage.dsn is required")
	}

	if c.Broker.Kind != "amqp" && c.Broker.Kind != "kafka" {
		return errors.Errorf("unknown broker kind %q, expected amqp or kafka", c.Broker.Kind)
	}

	if len(c.Broker.Addrs) == 0 {
		return errors.New("broker.addrs is required")
	}

	if c.Saga.MaxDeliveryAttempts < 1 {
		return errors.New("saga.max_delivery_attempts must be at least 1")
	}

	if c.Saga.Workers < 1 {
		return errors.New("saga.workers must be at least 1")
	}

	return nil
}

// SLAWindows maps every awaiting state to its timeout window.
func (c Config) SLAWindows() map[sagaPkg.State]time.Duration {
	return map[sagaPkg.State]time.Duration{
		sagaPkg.StatePlaced:             time.Duration(c.Saga.SLA.Placed),
		sagaPkg.StateReservingInventory: time.Duration(c.Saga.SLA.Reserving),
		sagaPkg.StateCapturingPayment:   time.Duration(c.Saga.SLA.Capturing),
		sagaPkg.StateFulfilling:         time.Duration(c.Saga.SLA.Fulfilling),
		sagaPkg.StateShipped:            time.Duration(c.Saga.SLA.Shipped),
	}
}
