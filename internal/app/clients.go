package app

import (
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
)

type Clients struct {
	// Bus is nil when REDIS_ADDR is unset; sweeps then lock in-process only and no events go out.
	Bus redisbus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR unset; running without the redis bus")
		return Clients{}, nil
	}
	bus, err := redisbus.NewBus(log, cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		return Clients{}, err
	}
	return Clients{Bus: bus}, nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
