package manager

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/metrics"
	"github.com/cuemby/vcp/pkg/security"
	"github.com/cuemby/vcp/pkg/storage"
	"github.com/cuemby/vcp/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Manager is the control-plane node: it owns the Raft log that replicates
// cluster state and the local store that answers reads. A cluster is a
// single Raft group bootstrapped on its first controller node; there is no
// peer-join path for additional Raft voters, so a Manager is always its own
// leader.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft           *raft.Raft
	fsm            *stateFSM
	store          storage.Store
	tokenManager   *TokenManager
	secretsManager *security.SecretsManager
	ca             *security.CertAuthority
	eventBroker    *events.Broker
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewManager creates a new Manager instance.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	fsm := newStateFSM(store)
	tokenManager := NewTokenManager()

	clusterKey := security.DeriveKeyFromClusterID(cfg.NodeID)
	secretsManager, err := security.NewSecretsManager(clusterKey)
	if err != nil {
		return nil, fmt.Errorf("create secrets manager: %w", err)
	}

	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		return nil, fmt.Errorf("set cluster encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()

	m := &Manager{
		nodeID:         cfg.NodeID,
		bindAddr:       cfg.BindAddr,
		dataDir:        cfg.DataDir,
		fsm:            fsm,
		store:          store,
		secretsManager: secretsManager,
		ca:             ca,
		tokenManager:   tokenManager,
		eventBroker:    eventBroker,
	}

	return m, nil
}

// Bootstrap initializes a new single-node Raft cluster. There is no support
// for adding further Raft voters: multi-controller replication is out of
// scope, and this is the only seam that starts the FSM.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tune Raft timeouts for faster failover (target: <10s).
	// Hashicorp Raft defaults (1s heartbeat/election, 500ms lease) are
	// conservative for WAN deployments; this cluster is LAN/edge-local.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("create log store: %w", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      config.LocalID,
				Address: transport.LocalAddr(),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}

	if err := m.initializeCA(); err != nil {
		return fmt.Errorf("initialize CA: %w", err)
	}

	return nil
}

// IsLeader returns true if this manager is the Raft leader. Single-node
// clusters are always their own leader once bootstrapped.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics for the metrics collector.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	configFuture := m.raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}

	return stats
}

// GetEventBroker returns the event broker.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers.
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft log and waits for it to commit.
func (m *Manager) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

func applyJSON(m *Manager, op string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: op, Data: data})
}

// --- Node operations ---

func (m *Manager) CreateNode(node *types.Node) error { return applyJSON(m, "create_node", node) }
func (m *Manager) UpdateNode(node *types.Node) error { return applyJSON(m, "update_node", node) }
func (m *Manager) DeleteNode(id string) error        { return applyJSON(m, "delete_node", id) }

func (m *Manager) GetNode(id string) (*types.Node, error) { return m.store.GetNode(id) }
func (m *Manager) ListNodes() ([]*types.Node, error)      { return m.store.ListNodes() }

// --- VM operations ---

func (m *Manager) CreateVM(vm *types.VM) error { return applyJSON(m, "create_vm", vm) }
func (m *Manager) UpdateVM(vm *types.VM) error { return applyJSON(m, "update_vm", vm) }
func (m *Manager) DeleteVM(id string) error    { return applyJSON(m, "delete_vm", id) }

func (m *Manager) GetVM(id string) (*types.VM, error)         { return m.store.GetVM(id) }
func (m *Manager) GetVMByName(name string) (*types.VM, error) { return m.store.GetVMByName(name) }
func (m *Manager) ListVMs() ([]*types.VM, error)              { return m.store.ListVMs() }
func (m *Manager) ListVMsByNode(nodeID string) ([]*types.VM, error) {
	return m.store.ListVMsByNode(nodeID)
}

// --- Storage pool operations ---

func (m *Manager) CreateStoragePool(pool *types.StoragePool) error {
	return applyJSON(m, "create_storage_pool", pool)
}
func (m *Manager) UpdateStoragePool(pool *types.StoragePool) error {
	return applyJSON(m, "update_storage_pool", pool)
}
func (m *Manager) DeleteStoragePool(id string) error {
	return applyJSON(m, "delete_storage_pool", id)
}

func (m *Manager) GetStoragePool(id string) (*types.StoragePool, error) {
	return m.store.GetStoragePool(id)
}
func (m *Manager) GetStoragePoolByName(name string) (*types.StoragePool, error) {
	return m.store.GetStoragePoolByName(name)
}
func (m *Manager) ListStoragePools() ([]*types.StoragePool, error) {
	return m.store.ListStoragePools()
}

// --- Volume operations ---

func (m *Manager) CreateVolume(volume *types.Volume) error {
	return applyJSON(m, "create_volume", volume)
}
func (m *Manager) UpdateVolume(volume *types.Volume) error {
	return applyJSON(m, "update_volume", volume)
}
func (m *Manager) DeleteVolume(id string) error { return applyJSON(m, "delete_volume", id) }

func (m *Manager) GetVolume(id string) (*types.Volume, error) { return m.store.GetVolume(id) }
func (m *Manager) GetVolumeByName(name string) (*types.Volume, error) {
	return m.store.GetVolumeByName(name)
}
func (m *Manager) ListVolumes() ([]*types.Volume, error) { return m.store.ListVolumes() }
func (m *Manager) ListVolumesByPool(poolID string) ([]*types.Volume, error) {
	return m.store.ListVolumesByPool(poolID)
}

// --- Snapshot operations ---

func (m *Manager) CreateSnapshot(snap *types.Snapshot) error {
	return applyJSON(m, "create_snapshot", snap)
}
func (m *Manager) UpdateSnapshot(snap *types.Snapshot) error {
	return applyJSON(m, "update_snapshot", snap)
}
func (m *Manager) DeleteSnapshot(id string) error { return applyJSON(m, "delete_snapshot", id) }

func (m *Manager) GetSnapshot(id string) (*types.Snapshot, error) { return m.store.GetSnapshot(id) }
func (m *Manager) ListSnapshots() ([]*types.Snapshot, error)      { return m.store.ListSnapshots() }
func (m *Manager) ListSnapshotsByVolume(volumeID string) ([]*types.Snapshot, error) {
	return m.store.ListSnapshotsByVolume(volumeID)
}

// --- Network and IP allocation operations ---

func (m *Manager) CreateNetwork(network *types.Network) error {
	return applyJSON(m, "create_network", network)
}
func (m *Manager) UpdateNetwork(network *types.Network) error {
	return applyJSON(m, "update_network", network)
}
func (m *Manager) DeleteNetwork(id string) error { return applyJSON(m, "delete_network", id) }

func (m *Manager) GetNetwork(id string) (*types.Network, error) { return m.store.GetNetwork(id) }
func (m *Manager) GetNetworkByName(name string) (*types.Network, error) {
	return m.store.GetNetworkByName(name)
}
func (m *Manager) ListNetworks() ([]*types.Network, error) { return m.store.ListNetworks() }

func (m *Manager) CreateIPAllocation(alloc *types.IPAllocation) error {
	return applyJSON(m, "create_ip_allocation", alloc)
}
func (m *Manager) UpdateIPAllocation(alloc *types.IPAllocation) error {
	return applyJSON(m, "update_ip_allocation", alloc)
}
func (m *Manager) GetIPAllocation(id string) (*types.IPAllocation, error) {
	return m.store.GetIPAllocation(id)
}
func (m *Manager) ListIPAllocations(networkID string) ([]*types.IPAllocation, error) {
	return m.store.ListIPAllocations(networkID)
}

// --- Task operations ---

func (m *Manager) CreateTask(task *types.Task) error { return applyJSON(m, "create_task", task) }
func (m *Manager) UpdateTask(task *types.Task) error { return applyJSON(m, "update_task", task) }
func (m *Manager) DeleteTask(id string) error        { return applyJSON(m, "delete_task", id) }

func (m *Manager) GetTask(id string) (*types.Task, error) { return m.store.GetTask(id) }
func (m *Manager) ListTasks() ([]*types.Task, error)      { return m.store.ListTasks() }
func (m *Manager) ListTasksByTarget(targetType, targetID string) ([]*types.Task, error) {
	return m.store.ListTasksByTarget(targetType, targetID)
}
func (m *Manager) ListTasksByNode(nodeID string) ([]*types.Task, error) {
	return m.store.ListTasksByNode(nodeID)
}

// --- User and role operations ---

func (m *Manager) CreateUser(user *types.User) error { return applyJSON(m, "create_user", user) }
func (m *Manager) UpdateUser(user *types.User) error { return applyJSON(m, "update_user", user) }
func (m *Manager) DeleteUser(id string) error        { return applyJSON(m, "delete_user", id) }

func (m *Manager) GetUser(id string) (*types.User, error) { return m.store.GetUser(id) }
func (m *Manager) GetUserByUsername(username string) (*types.User, error) {
	return m.store.GetUserByUsername(username)
}
func (m *Manager) ListUsers() ([]*types.User, error) { return m.store.ListUsers() }

func (m *Manager) CreateRole(role *types.Role) error { return applyJSON(m, "create_role", role) }
func (m *Manager) UpdateRole(role *types.Role) error { return applyJSON(m, "update_role", role) }
func (m *Manager) DeleteRole(id string) error        { return applyJSON(m, "delete_role", id) }

func (m *Manager) GetRole(id string) (*types.Role, error) { return m.store.GetRole(id) }
func (m *Manager) ListRoles() ([]*types.Role, error)      { return m.store.ListRoles() }

// --- Audit log ---

func (m *Manager) AppendAuditLog(entry *types.AuditLog) error {
	return applyJSON(m, "append_audit_log", entry)
}
func (m *Manager) ListAuditLogs(limit int) ([]*types.AuditLog, error) {
	return m.store.ListAuditLogs(limit)
}

// --- Secrets-at-rest ---

// EncryptSecret encrypts plaintext with the cluster encryption key. No
// write path in the controller calls it: VM rows, metadata included, are
// committed to the Raft log as given.
func (m *Manager) EncryptSecret(plaintext []byte) ([]byte, error) {
	return m.secretsManager.EncryptSecret(plaintext)
}

// DecryptSecret reverses EncryptSecret.
func (m *Manager) DecryptSecret(ciphertext []byte) ([]byte, error) {
	return m.secretsManager.DecryptSecret(ciphertext)
}

// --- Join tokens (agent node join, not Raft peer join) ---

// GenerateJoinToken generates a new join token for adding an agent node.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token and returns its role.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// ValidateToken is an alias of ValidateJoinToken. controllerd's RPC
// session handshake passes ValidateJoinToken itself to rpc.ServeAgent.
func (m *Manager) ValidateToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}

	return nil
}

// initializeCA initializes the cluster's Certificate Authority, used to
// issue mTLS certificates to agent nodes and API clients.
func (m *Manager) initializeCA() error {
	if m.ca.IsInitialized() {
		log.Info("certificate authority already initialized")
		return nil
	}

	if err := m.ca.LoadFromStore(); err == nil {
		log.Info("loaded existing certificate authority")
		return nil
	}

	log.Info("initializing new certificate authority")
	if err := m.ca.Initialize(); err != nil {
		return fmt.Errorf("initialize CA: %w", err)
	}

	if err := m.ca.SaveToStore(); err != nil {
		return fmt.Errorf("save CA: %w", err)
	}
	log.Info("certificate authority initialized and saved")

	certDir, err := security.GetCertDir("controller", m.nodeID)
	if err != nil {
		return fmt.Errorf("get cert directory: %w", err)
	}

	if security.CertExists(certDir) {
		log.Info(fmt.Sprintf("certificate already exists at %s", certDir))
		return nil
	}

	host, _, err := net.SplitHostPort(m.bindAddr)
	if err != nil {
		return fmt.Errorf("parse bind address: %w", err)
	}
	var ipAddresses []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ipAddresses = []net.IP{ip}
	}

	dnsNames := []string{
		fmt.Sprintf("controller-%s", m.nodeID),
		"localhost",
	}

	cert, err := m.ca.IssueNodeCertificate(m.nodeID, "controller", dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("issue node certificate: %w", err)
	}

	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}

	if err := security.SaveCACertToFile(m.ca.GetRootCACert(), certDir); err != nil {
		return fmt.Errorf("save CA certificate: %w", err)
	}

	log.Info(fmt.Sprintf("certificate issued and saved to %s", certDir))
	return nil
}

// IssueCertificate issues a client certificate for an agent node or CLI user.
func (m *Manager) IssueCertificate(nodeID, role string) (*tls.Certificate, error) {
	if !m.ca.IsInitialized() {
		return nil, fmt.Errorf("CA not initialized")
	}
	return m.ca.IssueNodeCertificate(nodeID, role, nil, nil)
}

// CertToPEM converts a TLS certificate to PEM format.
func (m *Manager) CertToPEM(cert *tls.Certificate) (certPEM, keyPEM []byte, err error) {
	if cert == nil {
		return nil, nil, fmt.Errorf("certificate is nil")
	}

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("private key is not RSA")
	}

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM, nil
}

// GetCACertPEM returns the CA certificate in PEM format.
func (m *Manager) GetCACertPEM() []byte {
	if !m.ca.IsInitialized() {
		return nil
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: m.ca.GetRootCACert(),
	})
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() string {
	return m.nodeID
}
