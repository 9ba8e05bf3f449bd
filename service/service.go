package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/EthStaker/staking-vault/beacon"
	"github.com/EthStaker/staking-vault/service/handlers"
	"github.com/EthStaker/staking-vault/vault"
)

type Service struct {
	Context  context.Context
	Logger   *slog.Logger
	Port     int
	Host     string
	Listener net.Listener
	Vault    *vault.Vault
	Beacon   beacon.ValidatorProvider
}

func (s *Service) Run() error {
	var err error

	s.Logger.Info("Starting service", "port", s.Port)

	if s.Listener == nil {
		s.Listener, err = net.Listen("tcp", fmt.Sprintf("%s:%d", s.Host, s.Port))
		if err != nil {
			return err
		}
	}

	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK\n"))
	})

	for _, handler := range []handlers.Handler{
		handlers.NewCreateDepositHandler(s.Logger, s.Vault),
		handlers.NewDepositActionHandler(s.Logger, s.Vault),
		handlers.NewGetDepositHandler(s.Logger, s.Vault),
		handlers.NewDepositsByOwnerHandler(s.Logger, s.Vault),
		handlers.NewCreateRedemptionHandler(s.Logger, s.Vault),
		handlers.NewRequestActionHandler(s.Logger, s.Vault, s.Beacon),
		handlers.NewGetRequestHandler(s.Logger, s.Vault),
		handlers.NewLedgerHandler(s.Logger, s.Vault),
		handlers.NewGetOperatorsHandler(s.Logger, s.Vault),
		handlers.NewUpdateOperatorsHandler(s.Logger, s.Vault),
		handlers.NewValidatorHandler(s.Logger, s.Beacon, s.Vault),
	} {
		serveMux.Handle(handler.Pattern(), handler)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: serveMux,
	}

	go func() {
		if err := server.Serve(s.Listener); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	<-s.Context.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	s.Logger.Info("Stopping service")
	return nil
}
