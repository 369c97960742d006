package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/metrics"
	"github.com/opencradle/cradle/pkg/resources"
	"github.com/opencradle/cradle/pkg/rpcserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a CRADLE RPC server",
	Long: `Start a server resolving requests submitted by peers over RPC.

A contained server is a short-lived subprocess spawned by another CRADLE
instance to isolate a computation; it serves the same protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		contained, _ := cmd.Flags().GetBool("contained")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port == 0 {
			n, err := cfg.NumberOrDefault(config.KeyRPCPortNumber, 8096)
			if err != nil {
				return err
			}
			port = int(n)
		}
		if contained {
			cfg = cfg.With(config.KeyRPCContained, true)
		}

		res, err := resources.New(cfg)
		if err != nil {
			return err
		}
		defer res.Close()

		registerCatalogs(res)

		srv := rpcserver.New(res)
		addr, err := srv.Listen(fmt.Sprintf(":%d", port))
		if err != nil {
			return err
		}
		log.Info(fmt.Sprintf("serving on %s (contained=%v)", addr, contained))

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorf("metrics endpoint failed", err)
				}
			}()
		}

		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			log.Info("shutting down")
			srv.Stop()
		}()

		return srv.Serve()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "RPC port (0 uses rpclib/port_number from the config)")
	serveCmd.Flags().Bool("contained", false, "Run as a contained subprocess server")
	serveCmd.Flags().String("metrics-addr", "", "Address for the Prometheus /metrics endpoint")
}
