package chainstate

import (
	"github.com/btcsuite/btclog"

	"github.com/Pranacoin/exchange/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.CHST)

func init() {
	if log == nil {
		log = btclog.Disabled
	}
}
