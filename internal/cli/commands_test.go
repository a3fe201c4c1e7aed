package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/config"
	"github.com/roach88/notekeeper/internal/devnet"
	"github.com/roach88/notekeeper/internal/remote"
)

// startNode serves a fresh devnet over gRPC on a loopback port.
func startNode(t *testing.T) (*devnet.Node, string) {
	t.Helper()
	node := devnet.New()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := remote.NewGRPCServer(node).NewServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return node, lis.Addr().String()
}

type cliClient struct {
	t      *testing.T
	config string
}

// newClient initializes a client directory pointed at addr.
func newClient(t *testing.T, addr string) *cliClient {
	t.Helper()
	dir := t.TempDir()
	c := &cliClient{t: t, config: filepath.Join(dir, "notekeeper.cue")}

	out, err := execute(t, "init", "--dir", dir, "--config", c.config, "--endpoint", addr, "--timeout", "2s")
	require.NoError(t, err, out)
	return c
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// run executes a command against the client's config with JSON output.
func (c *cliClient) run(args ...string) (string, error) {
	c.t.Helper()
	return execute(c.t, append([]string{"--config", c.config, "--format", "json"}, args...)...)
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func mustRun[T any](c *cliClient, args ...string) T {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	resp := decode[T](c.t, out)
	require.Equal(c.t, "ok", resp.Status)
	return resp.Data
}

func TestInit_CreatesConfigStoreAndKeystore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conf", "notekeeper.cue")

	out, err := execute(t, "--format", "json", "init", "--dir", dir, "--config", cfgPath, "--endpoint", "node.example:1")
	require.NoError(t, err, out)

	res := decode[InitResult](t, out).Data
	assert.Equal(t, cfgPath, res.ConfigPath)
	assert.Equal(t, "node.example:1", res.Endpoint)
	assert.FileExists(t, res.StorePath)
	assert.DirExists(t, res.KeystorePath)

	written, err := config.LoadFrom(config.Source{ConfigFile: cfgPath, LookupEnv: func(string) (string, bool) { return "", false }})
	require.NoError(t, err)
	assert.Equal(t, "node.example:1", written.Endpoint)
	assert.Equal(t, res.StorePath, written.StorePath)
	assert.Equal(t, res.KeystorePath, written.KeystorePath)

	// A second init refuses to overwrite
	out, err = execute(t, "--format", "json", "init", "--dir", dir, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "INITIALIZATION", decode[any](t, out).Error.Code)

	_, err = execute(t, "init", "--dir", dir, "--config", cfgPath, "--force")
	require.NoError(t, err)
}

func TestClientFlow_MintConsumeSend(t *testing.T) {
	node, addr := startNode(t)
	c := newClient(t, addr)

	faucet := mustRun[AccountView](c, "faucet", "new", "--symbol", "MID", "--decimals", "8", "--max-supply", "1000000")
	assert.Equal(t, "MID", faucet.Symbol)
	alice := mustRun[AccountView](c, "account", "new")
	bob := mustRun[AccountView](c, "account", "new", "--storage", "private")
	assert.Equal(t, "private", bob.Storage)

	minted := mustRun[SubmitResult](c, "mint", "--faucet", faucet.ID, "--to", alice.ID, "--amount", "100", "--count", "5")
	assert.Len(t, minted.Transactions, 5)
	assert.Equal(t, uint64(500), minted.Amount)

	node.ProduceBlock()
	synced := mustRun[SyncResult](c, "sync")
	assert.Equal(t, uint64(1), synced.Block)
	assert.Equal(t, 5, synced.CommittedTxs)

	notes := mustRun[NoteList](c, "notes", "--status", "committed", "--account", alice.ID)
	require.Len(t, notes.Notes, 5)
	assert.Equal(t, alice.ID, notes.Notes[0].Target)

	consumed := mustRun[SubmitResult](c, "consume", "--account", alice.ID)
	assert.Equal(t, 5, consumed.Notes)
	assert.Equal(t, uint64(500), consumed.Amount)

	// Claims survive between invocations
	pending := mustRun[NoteList](c, "notes", "--status", "pending")
	assert.Len(t, pending.Notes, 5)
	out, err := c.run("consume", "--account", alice.ID)
	require.Error(t, err)
	assert.Equal(t, "EMPTY_NOTE_SET", decode[any](t, out).Error.Code)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	node.ProduceBlock()
	mustRun[SyncResult](c, "sync")

	sent := mustRun[SubmitResult](c, "send", "--from", alice.ID, "--faucet", faucet.ID, "--amount", "50", "--to", bob.ID)
	assert.Len(t, sent.Transactions, 1)
	node.ProduceBlock()

	got := mustRun[SubmitResult](c, "consume", "--account", bob.ID, "--wait", "1")
	assert.Equal(t, uint64(50), got.Amount)
	node.ProduceBlock()
	mustRun[SyncResult](c, "sync")

	list := mustRun[AccountList](c, "account", "list")
	assert.Equal(t, uint64(4), list.Block)
	balances := map[string]AccountView{}
	for _, a := range list.Accounts {
		balances[a.ID] = a
	}
	assert.Equal(t, uint64(450), balances[alice.ID].Balances[faucet.ID])
	assert.Equal(t, uint64(2), balances[alice.ID].Nonce)
	assert.Equal(t, uint64(50), balances[bob.ID].Balances[faucet.ID])
	assert.Equal(t, uint64(500), balances[faucet.ID].Issued)
}

func TestCommands_UnknownAccount(t *testing.T) {
	_, addr := startNode(t)
	c := newClient(t, addr)
	stranger := mustRun[AccountView](newClient(t, addr), "account", "new")

	out, err := c.run("consume", "--account", stranger.ID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "ACCOUNT_NOT_FOUND", decode[any](t, out).Error.Code)

	out, err = c.run("send", "--from", "not-hex", "--faucet", stranger.ID, "--amount", "1", "--to", stranger.ID)
	require.Error(t, err)
	assert.Equal(t, "INVALID_ACCOUNT", decode[any](t, out).Error.Code)
}

func TestSync_UnreachableNodeIsRetryable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c := newClient(t, addr)
	out, err := c.run("--timeout", "300ms", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SYNC", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestNotes_TextOutput(t *testing.T) {
	_, addr := startNode(t)
	c := newClient(t, addr)

	out, err := execute(t, "--config", c.config, "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "No notes.")

	out, err = execute(t, "--config", c.config, "notes", "--status", "spent")
	require.Error(t, err)
	assert.Contains(t, out, "unknown --status")
}

func TestDemo_LocalDevnet(t *testing.T) {
	out, err := execute(t, "--format", "json", "demo")
	require.NoError(t, err, out)

	res := decode[DemoResult](t, out).Data
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	assert.Equal(t, "demo", res.Scenario)
	require.Len(t, res.Trace, 10)
	assert.Len(t, res.Accounts, 7, "faucet, wallet and five recipients")
}

func TestDemo_TextOutput(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err, out)
	assert.Contains(t, out, "await_consumable")
	assert.Contains(t, out, "alice: 250 (nonce 3)")
	assert.Contains(t, out, "Scenario demo passed.")
}

func TestDemo_FailingScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fail
description: a wallet never holds a balance it was not paid
steps:
  - action: create_faucet
    name: f
    symbol: F
    max_supply: 10
  - action: create_wallet
    name: w
  - action: balance
    account: w
    faucet: f
    expect: {balance: 1}
`), 0o644))

	out, err := execute(t, "demo", "--scenario", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "balance = 0, want 1")

	_, err = execute(t, "demo", "--scenario", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDemo_Remote(t *testing.T) {
	node, addr := startNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = node.Run(ctx, 20*time.Millisecond) }()

	t.Setenv("NOTEKEEPER_POLL_INTERVAL_MS", "20")
	out, err := execute(t, "--format", "json", "--endpoint", addr, "demo", "--remote")
	require.NoError(t, err, out)
	assert.True(t, decode[DemoResult](t, out).Data.Pass)
}

func TestDevnetCommand_ServesUntilCancelled(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"devnet", "--listen", "127.0.0.1:0", "--block-interval", "20ms"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("command did not respect context timeout")
	}

	assert.Contains(t, out.String(), "Devnet listening on 127.0.0.1:")
	assert.Contains(t, out.String(), "Devnet stopped at block")
}
