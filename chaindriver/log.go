package chaindriver

import (
	"github.com/btcsuite/btclog"

	"github.com/Pranacoin/exchange/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.DRVR)

func init() {
	if log == nil {
		log = btclog.Disabled
	}
}
