package app

import (
	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/infra/logger"

	// http pusher
	_ "github.com/kilianp07/roamsync/infra/ocpi"
)

func init() {
	_ = roaming.RegisterPusher("log", func(map[string]any) (roaming.Pusher, error) {
		return roaming.NewLogPusher(logger.New("pusher.log")), nil
	})
}
