package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EthStaker/staking-vault/beacon"
	"github.com/EthStaker/staking-vault/eth1"
	"github.com/EthStaker/staking-vault/service"
	"github.com/EthStaker/staking-vault/vault"
)

var (
	port            = flag.Int("port", 8080, "The port to listen on")
	cancelCooldown  = flag.Duration("cancel-cooldown", vault.DefaultCancelCooldown, "How long a confirmed deposit stays locked against cancellation")
	beaconUrl       urlValue
	eth1Url         urlValue
	depositContract addressValue
	owner           addressValue
	keyFile         keyValue
	logLevel        logLevelValue
	logFormat       logFormatValue
)

func main() {
	// Initialize non-primitive flags
	flag.Var(&logLevel, "log-level", "The log level to use")
	logLevel.Set("info")
	flag.Var(&logFormat, "log-format", "The log format to use - 'text' or 'json'")
	logFormat.Set("text")
	flag.Var(&beaconUrl, "beacon-url", "The beacon URL to use")
	beaconUrl.Set("http://localhost:5052")
	flag.Var(&eth1Url, "eth1-url", "The execution client URL to use")
	eth1Url.Set("http://localhost:8545")
	flag.Var(&depositContract, "deposit-contract", "The deposit contract address")
	flag.Var(&owner, "owner", "The address allowed to manage the operator set")
	flag.Var(&keyFile, "key-file", "File holding the hex-encoded private key used for deposits and payouts")
	flag.Parse()

	handler := logFormat.Handler(os.Stdout, &slog.HandlerOptions{Level: logLevel.Level})
	logger := slog.New(handler)

	if depositContract.String() == "" {
		logger.Error("A deposit contract address is required")
		os.Exit(1)
	}
	if owner.String() == "" {
		logger.Error("An owner address is required")
		os.Exit(1)
	}
	if keyFile.key == nil {
		logger.Error("A key file is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the beacon client
	beaconClient, err := beacon.NewClient(ctx, logger, logLevel.Level, beaconUrl.String())
	if err != nil {
		logger.Error("Failed to create beacon client", "error", err)
		os.Exit(1)
	}

	// Create the execution client used to submit deposits and pay out
	// refunds and redemptions
	eth1Client, err := eth1.NewClient(ctx, logger, eth1Url.String(), depositContract.Address, keyFile.key)
	if err != nil {
		logger.Error("Failed to create eth1 client", "error", err)
		os.Exit(1)
	}

	vlt, err := vault.New(vault.Config{
		Logger:         logger,
		Owner:          owner.Address,
		CancelCooldown: *cancelCooldown,
		Sink:           eth1Client,
		Transferor:     eth1Client,
		Now:            time.Now,
	})
	if err != nil {
		logger.Error("Failed to create vault", "error", err)
		os.Exit(1)
	}

	svc := service.Service{
		Logger:  logger,
		Context: ctx,
		Port:    *port,
		Vault:   vlt,
		Beacon:  beaconClient,
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := svc.Run(); err != nil {
			logger.Error("Failed to run service", "error", err)
			os.Exit(1)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled")
			os.Exit(0)
		case <-signalChannel:
			logger.Info("Signal received")
			cancel()
			signal.Reset(os.Interrupt, syscall.SIGTERM)
		}
	}
}
