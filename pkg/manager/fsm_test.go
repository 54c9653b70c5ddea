package manager

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/cuemby/vcp/pkg/storage"
	"github.com/cuemby/vcp/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

// pipeSink adapts an io.PipeWriter to raft.SnapshotSink for testing
// Persist/Restore without a real raft.FileSnapshotStore.
type pipeSink struct {
	*io.PipeWriter
}

func (s *pipeSink) ID() string      { return "test-snapshot" }
func (s *pipeSink) Cancel() error   { return s.PipeWriter.Close() }

func newTestFSM(t *testing.T) (*stateFSM, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newStateFSM(store), store
}

func applyCmd(t *testing.T, f *stateFSM, op string, v interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	cmdData, err := json.Marshal(Command{Op: op, Data: data})
	require.NoError(t, err)
	return f.Apply(&raft.Log{Data: cmdData})
}

func TestFSMApplyCreateVM(t *testing.T) {
	f, store := newTestFSM(t)

	resp := applyCmd(t, f, "create_vm", &types.VM{ID: "vm-1", Name: "web-1", Status: types.VMStatusStopped})
	require.Nil(t, resp)

	vm, err := store.GetVM("vm-1")
	require.NoError(t, err)
	require.Equal(t, "web-1", vm.Name)
}

func TestFSMApplyUnknownCommand(t *testing.T) {
	f, _ := newTestFSM(t)

	resp := f.Apply(&raft.Log{Data: []byte(`{"op":"bogus","data":null}`)})
	err, ok := resp.(error)
	require.True(t, ok)
	require.Error(t, err)
}

func TestFSMSnapshotAndRestore(t *testing.T) {
	f, store := newTestFSM(t)

	require.NoError(t, store.CreateNode(&types.Node{ID: "node-1", Hostname: "h1", Status: types.NodeStatusOnline}))
	require.NoError(t, store.CreateVM(&types.VM{ID: "vm-1", Name: "web-1", Status: types.VMStatusRunning}))

	snap, err := f.Snapshot()
	require.NoError(t, err)

	pr, pw := io.Pipe()
	go func() {
		_ = snap.Persist(&pipeSink{pw})
	}()

	f2, store2 := newTestFSM(t)
	require.NoError(t, f2.Restore(pr))

	vm, err := store2.GetVM("vm-1")
	require.NoError(t, err)
	require.Equal(t, types.VMStatusRunning, vm.Status)

	node, err := store2.GetNode("node-1")
	require.NoError(t, err)
	require.Equal(t, "h1", node.Hostname)
}
