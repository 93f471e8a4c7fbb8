package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Addr is the FreeSWITCH ESL Inbound address to dial.
	Addr string `env:"ESL_ADDR, default=127.0.0.1:8021"`

	// Password authenticates against FreeSWITCH's acl/ESL password.
	Password string `env:"ESL_PASSWORD, default=ClueCon"`

	// OutboundListenAddr is loaded from ESL_OUTBOUND_LISTEN_ADDR. The
	// outbound command does not read it; it binds its --host and --port
	// flags instead.
	OutboundListenAddr string `env:"ESL_OUTBOUND_LISTEN_ADDR, default=0.0.0.0:8084"`

	// EventFormat selects plain/json/xml for myevents subscriptions:
	// "plain", "json", or "xml".
	EventFormat string `env:"ESL_EVENT_FORMAT, default=json"`

	DebugHTTP bool `env:"ESL_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
