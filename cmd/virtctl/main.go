// Command virtctl is the operator CLI for the virtualization control
// plane: it talks to controllerd's REST API over HTTP with a bearer
// token, the same way a cluster CLI talks to its control plane over gRPC.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/vcp/pkg/client"
	"github.com/cuemby/vcp/pkg/types"
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
	Use:     "virtctl",
	Short:   "virtctl controls VMs, volumes, networks, and nodes on a controllerd cluster",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"virtctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("controller", "http://127.0.0.1:8080", "Controller API address")
	rootCmd.PersistentFlags().String("token", os.Getenv("VIRTCTL_TOKEN"), "Session token (defaults to $VIRTCTL_TOKEN)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(nodeCmd)
}

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("controller")
	token, _ := cmd.Flags().GetString("token")
	return client.NewClientWithToken(addr, token)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var loginCmd = &cobra.Command{
	Use:   "login USERNAME",
	Short: "Authenticate and print a session token",
	Long: `Login authenticates against the controller and prints the session
token to stdout.

Examples:
  export VIRTCTL_TOKEN=$(virtctl login admin --password secret)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		c := newClient(cmd)
		if err := c.Login(args[0], password); err != nil {
			return fmt.Errorf("login failed: %v", err)
		}
		fmt.Println(c.Token())
		return nil
	},
}

func init() {
	loginCmd.Flags().String("password", "", "Password (an empty password is sent if omitted)")
}

// VM commands

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage virtual machines",
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List virtual machines",
	RunE: func(cmd *cobra.Command, args []string) error {
		vms, err := newClient(cmd).ListVMs(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list vms: %v", err)
		}
		if len(vms) == 0 {
			fmt.Println("No VMs found")
			return nil
		}
		fmt.Printf("%-15s %-20s %-12s %-10s %-6s %-8s\n", "ID", "NAME", "STATUS", "NODE", "VCPU", "MEM_MB")
		for _, vm := range vms {
			fmt.Printf("%-15s %-20s %-12s %-10s %-6d %-8d\n",
				truncate(vm.ID, 15), truncate(vm.Name, 20), vm.Status, truncate(vm.NodeID, 10), vm.VCPU, vm.MemoryMB)
		}
		return nil
	},
}

var vmCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vcpu, _ := cmd.Flags().GetInt("vcpu")
		memoryMB, _ := cmd.Flags().GetInt("memory-mb")
		osType, _ := cmd.Flags().GetString("os-type")
		nodeID, _ := cmd.Flags().GetString("node-id")

		vm, err := newClient(cmd).CreateVM(context.Background(), map[string]any{
			"name":      args[0],
			"vcpu":      vcpu,
			"memory_mb": memoryMB,
			"os_type":   osType,
			"node_id":   nodeID,
		})
		if err != nil {
			return fmt.Errorf("failed to create vm: %v", err)
		}
		fmt.Printf("✓ VM created: %s (%s)\n", vm.Name, vm.ID)
		return nil
	},
}

var vmDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).DeleteVM(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete vm: %v", err)
		}
		fmt.Println("✓ VM deleted")
		return nil
	},
}

var vmStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := newClient(cmd).StartVM(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to start vm: %v", err)
		}
		fmt.Printf("✓ VM %s is %s\n", vm.Name, vm.Status)
		return nil
	},
}

var vmStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		vm, err := newClient(cmd).StopVM(context.Background(), args[0], force)
		if err != nil {
			return fmt.Errorf("failed to stop vm: %v", err)
		}
		fmt.Printf("✓ VM %s is %s\n", vm.Name, vm.Status)
		return nil
	},
}

var vmRestartCmd = &cobra.Command{
	Use:   "restart ID",
	Short: "Restart a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := newClient(cmd).RestartVM(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to restart vm: %v", err)
		}
		fmt.Printf("✓ VM %s is %s\n", vm.Name, vm.Status)
		return nil
	},
}

var vmMigrateCmd = &cobra.Command{
	Use:   "migrate ID TARGET_NODE_ID",
	Short: "Migrate a VM to another node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := newClient(cmd).MigrateVM(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to migrate vm: %v", err)
		}
		fmt.Printf("✓ VM %s is %s\n", vm.Name, vm.Status)
		return nil
	},
}

func init() {
	vmCmd.AddCommand(vmListCmd, vmCreateCmd, vmDeleteCmd, vmStartCmd, vmStopCmd, vmRestartCmd, vmMigrateCmd)

	vmCreateCmd.Flags().Int("vcpu", 1, "Number of virtual CPUs")
	vmCreateCmd.Flags().Int("memory-mb", 512, "Memory in MB")
	vmCreateCmd.Flags().String("os-type", "linux", "Guest OS type")
	vmCreateCmd.Flags().String("node-id", "", "Node to place the VM on (scheduler picks one if empty)")

	vmStopCmd.Flags().Bool("force", false, "Force stop without a graceful guest shutdown")
}

// Volume commands

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage storage volumes",
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		vols, err := newClient(cmd).ListVolumes(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list volumes: %v", err)
		}
		if len(vols) == 0 {
			fmt.Println("No volumes found")
			return nil
		}
		fmt.Printf("%-15s %-20s %-8s %-10s %-10s\n", "ID", "NAME", "TYPE", "SIZE_GB", "POOL")
		for _, vol := range vols {
			fmt.Printf("%-15s %-20s %-8s %-10.1f %-10s\n",
				truncate(vol.ID, 15), truncate(vol.Name, 20), vol.Type, vol.SizeGB, truncate(vol.PoolID, 10))
		}
		return nil
	},
}

var volumeCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sizeGB, _ := cmd.Flags().GetFloat64("size-gb")
		volType, _ := cmd.Flags().GetString("type")
		poolID, _ := cmd.Flags().GetString("pool-id")

		vol, err := newClient(cmd).CreateVolume(context.Background(), map[string]any{
			"name":    args[0],
			"type":    volType,
			"size_gb": sizeGB,
			"pool_id": poolID,
		})
		if err != nil {
			return fmt.Errorf("failed to create volume: %v", err)
		}
		fmt.Printf("✓ Volume created: %s (%s)\n", vol.Name, vol.ID)
		return nil
	},
}

var volumeDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).DeleteVolume(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete volume: %v", err)
		}
		fmt.Println("✓ Volume deleted")
		return nil
	},
}

var volumeResizeCmd = &cobra.Command{
	Use:   "resize ID SIZE_GB",
	Short: "Resize a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sizeGB float64
		if _, err := fmt.Sscanf(args[1], "%f", &sizeGB); err != nil {
			return fmt.Errorf("invalid size_gb %q: %v", args[1], err)
		}
		vol, err := newClient(cmd).ResizeVolume(context.Background(), args[0], sizeGB)
		if err != nil {
			return fmt.Errorf("failed to resize volume: %v", err)
		}
		fmt.Printf("✓ Volume %s resized to %.1f GB\n", vol.Name, vol.SizeGB)
		return nil
	},
}

var volumeCloneCmd = &cobra.Command{
	Use:   "clone ID NEW_NAME",
	Short: "Clone a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vol, err := newClient(cmd).CloneVolume(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to clone volume: %v", err)
		}
		fmt.Printf("✓ Volume cloned: %s (%s)\n", vol.Name, vol.ID)
		return nil
	},
}

func init() {
	volumeCmd.AddCommand(volumeListCmd, volumeCreateCmd, volumeDeleteCmd, volumeResizeCmd, volumeCloneCmd)

	volumeCreateCmd.Flags().Float64("size-gb", 10, "Volume size in GB")
	volumeCreateCmd.Flags().String("type", "qcow2", "Volume type (qcow2, raw, ceph, nfs, lvm)")
	volumeCreateCmd.Flags().String("pool-id", "", "Storage pool to create the volume in")
}

// Snapshot commands

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage volume snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := newClient(cmd).ListSnapshots(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %v", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}
		fmt.Printf("%-15s %-20s %-15s\n", "ID", "NAME", "VOLUME_ID")
		for _, snap := range snaps {
			fmt.Printf("%-15s %-20s %-15s\n", truncate(snap.ID, 15), truncate(snap.Name, 20), truncate(snap.VolumeID, 15))
		}
		return nil
	},
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create VOLUME_ID NAME",
	Short: "Create a snapshot of a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := newClient(cmd).CreateSnapshot(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %v", err)
		}
		fmt.Printf("✓ Snapshot created: %s (%s)\n", snap.Name, snap.ID)
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).DeleteSnapshot(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete snapshot: %v", err)
		}
		fmt.Println("✓ Snapshot deleted")
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a volume from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vol, err := newClient(cmd).RestoreSnapshot(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to restore snapshot: %v", err)
		}
		fmt.Printf("✓ Volume %s restored\n", vol.Name)
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd, snapshotCreateCmd, snapshotDeleteCmd, snapshotRestoreCmd)
}

// Network commands

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage virtual networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		nets, err := newClient(cmd).ListNetworks(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list networks: %v", err)
		}
		if len(nets) == 0 {
			fmt.Println("No networks found")
			return nil
		}
		fmt.Printf("%-15s %-20s %-8s %-18s\n", "ID", "NAME", "TYPE", "CIDR")
		for _, net := range nets {
			fmt.Printf("%-15s %-20s %-8s %-18s\n", truncate(net.ID, 15), truncate(net.Name, 20), net.Type, net.CIDR)
		}
		return nil
	},
}

var networkCreateCmd = &cobra.Command{
	Use:   "create NAME CIDR",
	Short: "Create a new network",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		netType, _ := cmd.Flags().GetString("type")
		nodeID, _ := cmd.Flags().GetString("node-id")
		gateway, _ := cmd.Flags().GetString("gateway")

		net, err := newClient(cmd).CreateNetwork(context.Background(), map[string]any{
			"name":    args[0],
			"cidr":    args[1],
			"type":    netType,
			"node_id": nodeID,
			"gateway": gateway,
		})
		if err != nil {
			return fmt.Errorf("failed to create network: %v", err)
		}
		fmt.Printf("✓ Network created: %s (%s)\n", net.Name, net.ID)
		return nil
	},
}

var networkDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).DeleteNetwork(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete network: %v", err)
		}
		fmt.Println("✓ Network deleted")
		return nil
	},
}

var networkAllocateIPCmd = &cobra.Command{
	Use:   "allocate-ip NETWORK_ID",
	Short: "Allocate the next free address on a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, err := newClient(cmd).AllocateIP(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to allocate ip: %v", err)
		}
		fmt.Printf("✓ Allocated %s\n", alloc.IPAddress)
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkCreateCmd, networkDeleteCmd, networkAllocateIPCmd)

	networkCreateCmd.Flags().String("type", string(types.NetworkBridge), "Network type (bridge, ovs)")
	networkCreateCmd.Flags().String("node-id", "", "Node the network is provisioned on")
	networkCreateCmd.Flags().String("gateway", "", "Gateway address")
}

// Node commands

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage cluster nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes in the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := newClient(cmd).ListNodes(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list nodes: %v", err)
		}
		if len(nodes) == 0 {
			fmt.Println("No nodes found")
			return nil
		}
		fmt.Printf("%-15s %-20s %-10s %-6s\n", "ID", "HOSTNAME", "STATUS", "CPU")
		for _, node := range nodes {
			fmt.Printf("%-15s %-20s %-10s %-6d\n",
				truncate(node.ID, 15), truncate(node.Hostname, 20), node.Status, node.CPUCores)
		}
		return nil
	},
}

var nodeJoinTokenCmd = &cobra.Command{
	Use:   "join-token ROLE",
	Short: "Generate a join token for an agent or controller node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := newClient(cmd).GenerateJoinToken(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to generate join token: %v", err)
		}
		fmt.Println(token)
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a node from the cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).DeleteNode(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete node: %v", err)
		}
		fmt.Println("✓ Node removed")
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeListCmd, nodeJoinTokenCmd, nodeDeleteCmd)
}
