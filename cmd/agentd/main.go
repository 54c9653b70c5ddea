// Command agentd runs on a hypervisor node: it connects to a
// controllerd's agent websocket transport, registers its identity, and
// executes every vm/volume/snapshot call the controller dispatches
// against the local libvirt, storage, and network drivers.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/vcp/pkg/agent"
	"github.com/cuemby/vcp/pkg/agent/driver/hypervisor"
	"github.com/cuemby/vcp/pkg/agent/driver/network"
	"github.com/cuemby/vcp/pkg/agent/driver/storage"
	"github.com/cuemby/vcp/pkg/log"
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
	Use:     "agentd",
	Short:   "agentd runs a hypervisor agent node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agentd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("node-id", "", "Unique node ID (required)")
	runCmd.Flags().String("hostname", "", "Hostname advertised to the controller (defaults to os.Hostname)")
	runCmd.Flags().String("ip-address", "", "IP address advertised to the controller")
	runCmd.Flags().String("controller", "ws://127.0.0.1:8081/ws/agent", "Controller agent-transport URL")
	runCmd.Flags().String("token", "", "Join token issued by the controller")
	runCmd.Flags().String("libvirt-socket", "/var/run/libvirt/libvirt-sock", "Path to the libvirt socket")
	runCmd.Flags().String("uplink", "eth0", "Physical uplink interface for VLAN networks")
	_ = runCmd.MarkFlagRequired("node-id")
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
	Short: "Connect to the controller and serve hypervisor operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		hostname, _ := cmd.Flags().GetString("hostname")
		ipAddress, _ := cmd.Flags().GetString("ip-address")
		controllerURL, _ := cmd.Flags().GetString("controller")
		token, _ := cmd.Flags().GetString("token")
		socketPath, _ := cmd.Flags().GetString("libvirt-socket")
		uplink, _ := cmd.Flags().GetString("uplink")

		if hostname == "" {
			h, err := os.Hostname()
			if err != nil {
				return fmt.Errorf("failed to determine hostname: %v", err)
			}
			hostname = h
		}

		fmt.Println("Starting agent...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Hostname: %s\n", hostname)
		fmt.Printf("  Controller: %s\n", controllerURL)
		fmt.Println()

		hv, err := hypervisor.NewLibvirtDriver(socketPath)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %v", err)
		}

		st := storage.NewDispatcher()
		nw := &network.LinkDriver{Uplink: uplink}

		a := agent.NewAgent(agent.Config{
			NodeID:        nodeID,
			Hostname:      hostname,
			IPAddress:     ipAddress,
			ControllerURL: controllerURL,
			JoinToken:     token,
		}, hv, st, nw)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.Start(ctx)
		fmt.Println("✓ Agent started")
		fmt.Println()
		fmt.Println("Agent is running. Press Ctrl+C to stop.")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		a.Stop()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}
