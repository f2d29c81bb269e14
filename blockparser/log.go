package blockparser

import (
	"github.com/btcsuite/btclog"

	"github.com/Pranacoin/exchange/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.PARS)

func init() {
	if log == nil {
		log = btclog.Disabled
	}
}
