// Command bsqparserd wires the parser's ambient stack (config, logging,
// chain state) around a BlockSource, runs the catch-up sweep, then parks
// on an interrupt signal.
//
// The BlockSource itself — the RPC client that talks to the underlying
// chain node — is an external collaborator; NewNodeBlockSource below is
// the integration point an embedder supplies a real implementation for.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pranacoin/exchange/chaindriver"
	"github.com/Pranacoin/exchange/chainsource"
	"github.com/Pranacoin/exchange/chainstate"
	"github.com/Pranacoin/exchange/cmd/bsqparserd/config"
	"github.com/Pranacoin/exchange/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	if err := logger.InitLogRotator(cfg.LogFilePath()); err != nil {
		return err
	}
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	state := chainstate.New()
	source := NewNodeBlockSource()
	driver := chaindriver.New(state, source)
	defer driver.Close()

	ctx, cancel := signalContext()
	defer cancel()

	parserCfg := cfg.ParserConfig()
	onBlock := func(block *chainstate.Block) {
		bsqdLog.Infof("committed block %d (%s) with %d colored tx(s)",
			block.Height, block.Hash, len(block.ColoredTxIDs))
	}
	progress := func(height, head uint32) {
		bsqdLog.Debugf("catch-up progress: %d/%d", height, head)
	}

	head, err := source.HeadHeight(ctx)
	if err != nil {
		return err
	}
	if err := driver.ParseBlocks(ctx, cfg.StartHeight, head, parserCfg, onBlock, progress); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

var bsqdLog, _ = logger.Get(logger.SubsystemTags.BSQD)

// NodeBlockSource is the BlockSource implementation an embedder supplies
// by pointing NewNodeBlockSource at a real underlying-chain RPC client.
// This stub reports the chain unavailable so bsqparserd fails loudly
// rather than silently parsing nothing.
type NodeBlockSource struct{}

// NewNodeBlockSource returns the BlockSource this daemon drives its
// parser with. Wire a real RPC client here.
func NewNodeBlockSource() *NodeBlockSource {
	return &NodeBlockSource{}
}

// HeadHeight returns the underlying chain's current tip height.
func (s *NodeBlockSource) HeadHeight(ctx context.Context) (uint32, error) {
	return 0, fmt.Errorf("no underlying chain RPC client wired into NodeBlockSource")
}

func (s *NodeBlockSource) RequestBlock(ctx context.Context, height uint32) (*chainsource.RawBlock, error) {
	return nil, fmt.Errorf("no underlying chain RPC client wired into NodeBlockSource")
}

func (s *NodeBlockSource) RequestTransaction(ctx context.Context, txID string, expectedHeight uint32) (*chainsource.TxRecord, error) {
	return nil, fmt.Errorf("no underlying chain RPC client wired into NodeBlockSource")
}
