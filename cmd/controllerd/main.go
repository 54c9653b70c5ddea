// Command controllerd is the virtualization control plane: it owns the
// Raft-replicated cluster state, schedules and reconciles VM/volume/
// network intents, and exposes the REST API and the agent websocket
// transport agents dial into.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/vcp/pkg/api"
	"github.com/cuemby/vcp/pkg/ipam"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/metrics"
	"github.com/cuemby/vcp/pkg/orchestrator"
	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/scheduler"
	"github.com/cuemby/vcp/pkg/security"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "controllerd",
	Short: "controllerd runs the virtualization control plane",
	Long: `controllerd is the control plane of a self-hostable virtualization
cluster: it replicates cluster state over Raft, schedules VM placement,
reconciles intent against agent-reported state, and serves the REST API
and the agent websocket transport.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"controllerd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("node-id", "controller-1", "Unique node ID")
	runCmd.Flags().String("bind-addr", "127.0.0.1:7946", "Address for Raft communication")
	runCmd.Flags().String("api-addr", "127.0.0.1:8080", "Address for the REST API and frontend websocket")
	runCmd.Flags().String("rpc-addr", "127.0.0.1:8081", "Address agents dial for the agent websocket transport")
	runCmd.Flags().String("data-dir", "./controllerd-data", "Data directory for cluster state")
	runCmd.Flags().String("jwt-signing-key", "", "HS256 signing key for session tokens (generated if empty)")
	runCmd.Flags().StringSlice("cors-origin", []string{"*"}, "Allowed CORS origins for the REST API")
	runCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the metrics server")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control plane",
	Long: `Run bootstraps a single-node controller cluster and starts every
control-plane subsystem: scheduler, reconciler, metrics, REST API, and
the agent transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		signingKey, _ := cmd.Flags().GetString("jwt-signing-key")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origin")
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

		fmt.Println("Initializing controller...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Raft Address: %s\n", bindAddr)
		fmt.Printf("  API Address: %s\n", apiAddr)
		fmt.Printf("  Agent Transport: %s\n", rpcAddr)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Println()

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:   nodeID,
			BindAddr: bindAddr,
			DataDir:  dataDir,
		})
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		fmt.Println("✓ Cluster initialized successfully")

		sched := scheduler.NewScheduler(mgr)
		sched.Start()
		fmt.Println("✓ Scheduler started")

		alloc := ipam.NewAllocator(mgr)

		// orchestrator.NewService needs the registry to dispatch calls to
		// agents, but the registry's hooks need to call back into the
		// service. svc is assigned immediately after NewService returns;
		// the hooks can't fire before then because no agent has connected.
		var svc *orchestrator.Service
		registry := rpc.NewRegistry(rpc.RegisterHooks{
			OnRegister: func(info rpc.RegistrationInfo) { svc.HandleNodeRegistered(info) },
			OnOffline:  func(nodeID string) { svc.HandleNodeOffline(nodeID) },
		})
		svc = orchestrator.NewService(mgr, sched, registry, alloc)

		recon := orchestrator.NewReconciler(svc)
		recon.Start()
		fmt.Println("✓ Reconciler started")

		metricsCollector := metrics.NewCollector(mgr)
		metricsCollector.Start()
		fmt.Println("✓ Metrics collector started")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("raft", true, "bootstrapped")
		metrics.RegisterComponent("api", false, "initializing")
		metrics.RegisterComponent("rpc", false, "initializing")

		metricsAddr := "127.0.0.1:9090"
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if pprofEnabled {
			mux.Handle("/debug/pprof/", http.DefaultServeMux)
		}
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Printf("Metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
		fmt.Printf("✓ Health endpoints: http://%s/{health,ready,live}\n", metricsAddr)
		if pprofEnabled {
			fmt.Printf("✓ Profiling endpoints enabled at http://%s/debug/pprof/\n", metricsAddr)
		}

		if signingKey == "" {
			// Derive a stable per-node key when none is configured; a
			// production deployment should always pass --jwt-signing-key.
			sum := sha256.Sum256([]byte("controllerd-" + nodeID + "-" + dataDir))
			signingKey = hex.EncodeToString(sum[:])
		}
		tokens, err := security.NewTokenManager([]byte(signingKey), "controllerd")
		if err != nil {
			return fmt.Errorf("failed to create token manager: %v", err)
		}

		apiServer := api.NewServer(mgr, svc, alloc, tokens, api.Config{AllowedOrigins: corsOrigins})
		errCh := make(chan error, 2)
		go func() {
			if err := apiServer.Start(apiAddr); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()

		rpcMux := http.NewServeMux()
		rpcMux.HandleFunc("/ws/agent", func(w http.ResponseWriter, r *http.Request) {
			rpc.ServeAgent(registry, mgr.ValidateJoinToken, w, r)
		})
		rpcServer := &http.Server{Addr: rpcAddr, Handler: rpcMux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("agent transport error: %v", err)
			}
		}()

		time.Sleep(500 * time.Millisecond)
		metrics.RegisterComponent("api", true, "ready")
		metrics.RegisterComponent("rpc", true, "ready")

		fmt.Println()
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println("  Join Tokens (valid for 24 hours)")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()

		agentToken, _ := mgr.GenerateJoinToken("agent")
		fmt.Println("Agent Token:")
		fmt.Printf("  %s\n", agentToken.Token)
		fmt.Println()
		fmt.Println("To add an agent node:")
		fmt.Printf("  agentd run --controller ws://%s/ws/agent --token %s\n", rpcAddr, agentToken.Token)
		fmt.Println()
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		fmt.Println("Controller is running. Press Ctrl+C to stop.")
		fmt.Printf("REST API listening on %s\n", apiAddr)
		fmt.Println()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		sched.Stop()
		recon.Stop()
		metricsCollector.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(ctx)
		_ = rpcServer.Shutdown(ctx)
		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown: %v", err)
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}
