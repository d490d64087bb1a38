package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExec returns a function that produces canned output per binary.
func mockExec(outputs map[string][]byte, errs map[string]error) ExecFunc {
	return func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		if err, ok := errs[name]; ok {
			return outputs[name], []byte("stderr from " + name), err
		}
		if out, ok := outputs[name]; ok {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
				return out, nil, nil
			}
		}
		return nil, nil, errors.New("unknown binary: " + name)
	}
}

func TestRun_Success(t *testing.T) {
	r := New(mockExec(map[string][]byte{"npm": []byte(`{"ok":true}`)}, nil))

	res := r.Run(context.Background(), Command{Name: "npm", Args: []string{"audit", "--json"}})

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, `{"ok":true}`, string(res.Stdout))
	assert.Equal(t, "npm audit --json", res.Command)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Started())
}

func TestRun_NonZeroExitKeepsOutput(t *testing.T) {
	r := New(mockExec(
		map[string][]byte{"npm": []byte(`{"metadata":{}}`)},
		map[string]error{"npm": ExitStatus(1)},
	))

	res := r.Run(context.Background(), Command{Name: "npm"})

	assert.False(t, res.OK())
	assert.True(t, res.Started(), "a process that exited with status 1 has started")
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, `{"metadata":{}}`, string(res.Stdout))
	assert.Contains(t, res.Output(), "stderr from npm")
}

func TestRun_SpawnFailure(t *testing.T) {
	r := New(mockExec(nil, map[string]error{"missing": errors.New("executable file not found")}))

	res := r.Run(context.Background(), Command{Name: "missing"})

	assert.False(t, res.OK())
	assert.False(t, res.Started())
	assert.Equal(t, -1, res.ExitCode)
}

func TestRun_Timeout(t *testing.T) {
	exec := func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}

	r := New(exec)
	res := r.Run(context.Background(), Command{Name: "tsc", Timeout: 50 * time.Millisecond})

	assert.True(t, res.TimedOut)
	assert.False(t, res.OK())
	assert.False(t, res.Started())
	assert.GreaterOrEqual(t, res.Duration, 50*time.Millisecond)
	assert.Contains(t, res.Err.Error(), "timeout")
}

func TestRun_PassesDirAndArgs(t *testing.T) {
	var gotDir, gotName string
	var gotArgs []string
	exec := func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		gotDir, gotName, gotArgs = dir, name, args
		return nil, nil, nil
	}

	r := New(exec)
	r.Run(context.Background(), Command{Name: "grep", Args: []string{"-rnE", "a|b; rm -rf /"}, Dir: "/repo"})

	assert.Equal(t, "/repo", gotDir)
	assert.Equal(t, "grep", gotName)
	assert.Equal(t, []string{"-rnE", "a|b; rm -rf /"}, gotArgs, "arguments are passed verbatim, never through a shell")
}

func TestFromArgv(t *testing.T) {
	cmd, err := FromArgv([]string{"npx", "tsc", "--noEmit"}, "/repo", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "npx", cmd.Name)
	assert.Equal(t, []string{"tsc", "--noEmit"}, cmd.Args)
	assert.Equal(t, "/repo", cmd.Dir)
	assert.Equal(t, time.Minute, cmd.Timeout)

	_, err = FromArgv(nil, "/repo", time.Minute)
	assert.Error(t, err)
	_, err = FromArgv([]string{" "}, "/repo", time.Minute)
	assert.Error(t, err)
}

func TestResultOutput(t *testing.T) {
	assert.Equal(t, "out", Result{Stdout: []byte("out")}.Output())
	assert.Equal(t, "err", Result{Stderr: []byte("err")}.Output())
	assert.Equal(t, "out\nerr", Result{Stdout: []byte("out"), Stderr: []byte("err")}.Output())
}
