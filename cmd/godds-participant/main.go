package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/godds/core/config"
	"github.com/godds/core/internal/xcmd"
	"github.com/godds/core/introspect"
	"github.com/godds/core/participant"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "godds-participant",
	Short: "Runs a single DDS domain participant",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Development = false
	zapCfg.Level.SetLevel(zap.DebugLevel)

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	log := logger.Sugar()

	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p, err := participant.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize participant: %w", err)
	}

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return p.Run(ctx)
	})

	if cfg.Introspect.Enabled {
		grpcServer, err := newIntrospectServer(cfg, p, log)
		if err != nil {
			return fmt.Errorf("failed to start introspection server: %w", err)
		}
		wg.Go(func() error {
			<-ctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

func newIntrospectServer(cfg *config.Config, p *participant.Participant, log *zap.SugaredLogger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.Introspect.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Introspect.Endpoint, err)
	}

	server := grpc.NewServer()
	introspect.RegisterDomainStatsServer(server, introspect.NewDomainStatsService(p, log))

	go func() {
		if err := server.Serve(lis); err != nil {
			log.Warnw("introspection server stopped", "error", err)
		}
	}()
	return server, nil
}
