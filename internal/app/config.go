package app

import (
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

type Config struct {
	Port    string
	LogMode string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:    utils.GetEnv("PORT", "8080", log),
		LogMode: utils.GetEnv("LOG_MODE", "development", log),
	}
}
