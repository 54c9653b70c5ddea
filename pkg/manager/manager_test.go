package manager

import (
	"net"
	"testing"

	"github.com/cuemby/vcp/pkg/types"
	"github.com/stretchr/testify/require"
)

// freeAddr finds an available TCP port on loopback for a Raft transport
// to bind to.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newBootstrappedManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(&Config{
		NodeID:   "node-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func TestManagerBootstrapIsLeader(t *testing.T) {
	m := newBootstrappedManager(t)
	require.True(t, m.IsLeader())
	require.Equal(t, "node-1", m.NodeID())
}

func TestManagerCreateAndGetVM(t *testing.T) {
	m := newBootstrappedManager(t)

	vm := &types.VM{ID: "vm-1", Name: "web-1", Status: types.VMStatusStopped}
	require.NoError(t, m.CreateVM(vm))

	got, err := m.GetVMByName("web-1")
	require.NoError(t, err)
	require.Equal(t, "vm-1", got.ID)

	vms, err := m.ListVMs()
	require.NoError(t, err)
	require.Len(t, vms, 1)

	require.NoError(t, m.DeleteVM("vm-1"))
	_, err = m.GetVM("vm-1")
	require.Error(t, err)
}

func TestManagerJoinTokenRoundTrip(t *testing.T) {
	m := newBootstrappedManager(t)

	token, err := m.GenerateJoinToken("agent")
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	role, err := m.ValidateJoinToken(token.Token)
	require.NoError(t, err)
	require.Equal(t, "agent", role)

	_, err = m.ValidateJoinToken("not-a-real-token")
	require.Error(t, err)
}

func TestManagerEncryptDecryptSecret(t *testing.T) {
	m := newBootstrappedManager(t)

	plaintext := []byte("cloud-init-user-data")
	ciphertext, err := m.EncryptSecret(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := m.DecryptSecret(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestManagerCertificateAuthorityInitialized(t *testing.T) {
	m := newBootstrappedManager(t)

	caPEM := m.GetCACertPEM()
	require.NotEmpty(t, caPEM)

	cert, err := m.IssueCertificate("agent-1", "agent")
	require.NoError(t, err)
	require.NotNil(t, cert)
}
