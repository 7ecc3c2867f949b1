package env

import (
	"github.com/thatsimonsguy/purifier-controller/internal/config"
)

var Cfg *config.Config
