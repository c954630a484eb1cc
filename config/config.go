package config

import (
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// Server
	AppHost     string `envconfig:"APP_HOST" default:"0.0.0.0"`
	AppPort     string `envconfig:"APP_PORT" default:"8080"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	// Auth
	PublicKeyURL string `envconfig:"PUBLIC_KEY_URL"`
	// Payment gateway
	GatewayBaseURL    string `envconfig:"PAYMENT_GATEWAY_BASE_URL" required:"true"`
	GatewayAPIKey     string `envconfig:"PAYMENT_GATEWAY_API_KEY" required:"true"`
	GatewayTimeoutSec int    `envconfig:"PAYMENT_GATEWAY_TIMEOUT_SEC" default:"10"`
	// Lifecycle engine
	LockWaitMS int `envconfig:"BOOKING_LOCK_WAIT_MS" default:"5000"`
	// Deadline sweep
	SweepIntervalMin int `envconfig:"SWEEP_INTERVAL_MIN" default:"5"`
	// Notifications (optional; log-only when empty)
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"hotelmate.events"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
