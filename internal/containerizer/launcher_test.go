package containerizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"conductor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecCommandContext re-runs the test binary as a fake docker CLI.
func mockExecCommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", name}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func useMockDocker(t *testing.T) {
	t.Helper()
	oldExec, oldLook := execCommandContext, lookPath
	execCommandContext = mockExecCommandContext
	lookPath = func(string) (string, error) { return "/usr/bin/docker", nil }
	t.Cleanup(func() {
		execCommandContext = oldExec
		lookPath = oldLook
	})
}

// helperCommand returns a command line that runs TestHelperProcess in mode.
func helperCommand(mode string) ([]string, map[string]string) {
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode},
		map[string]string{"GO_WANT_HELPER_PROCESS": "1"}
}

// TestHelperProcess is a helper process for mocking exec.Command
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "No command\n")
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "serve":
		fmt.Println("listening")
		time.Sleep(time.Minute)
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ignoring SIGTERM")
		time.Sleep(time.Minute)
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "fatal: model not found")
		os.Exit(3)
	case "docker":
		helperDocker(args)
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s %v\n", cmd, args)
	os.Exit(1)
}

func helperDocker(args []string) {
	if len(args) == 0 {
		os.Exit(1)
	}
	switch args[0] {
	case "info", "stop", "kill", "rm":
		os.Exit(0)
	case "image":
		if len(args) > 2 && args[1] == "inspect" && args[2] == "local/tts:1" {
			os.Exit(0)
		}
		os.Exit(1)
	case "pull":
		if len(args) > 1 && strings.HasPrefix(args[1], "missing/") {
			fmt.Fprintln(os.Stderr, "Error response from daemon: pull access denied")
			os.Exit(1)
		}
		os.Exit(0)
	case "run":
		for _, a := range args {
			if a == "broken/image:1" {
				fmt.Fprintln(os.Stderr, "docker: invalid reference format")
				os.Exit(125)
			}
		}
		fmt.Println("abc123def456789")
		os.Exit(0)
	case "port":
		if len(args) > 2 && args[2] == "80" {
			fmt.Println("0.0.0.0:32768")
			fmt.Println("[::]:32768")
			os.Exit(0)
		}
		os.Exit(1)
	}
	os.Exit(1)
}

func TestNewDockerLauncher(t *testing.T) {
	useMockDocker(t)
	d, err := NewDockerLauncher(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, d)

	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	_, err = NewDockerLauncher(context.Background())
	assert.Error(t, err)
}

func TestDockerLauncher_Launch(t *testing.T) {
	useMockDocker(t)
	d, err := NewDockerLauncher(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name     string
		dep      config.DeploymentSpec
		wantAddr string
		wantErr  bool
	}{
		{
			name:     "published port resolved",
			dep:      config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "local/tts:1", Ports: []string{"0:80"}},
			wantAddr: "127.0.0.1:32768",
		},
		{
			name:     "explicit address wins",
			dep:      config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "remote/tts:1", Address: "tts.local:80", Ports: []string{"80"}},
			wantAddr: "tts.local:80",
		},
		{
			name:     "no ports no address",
			dep:      config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "local/tts:1"},
			wantAddr: "",
		},
		{
			name:    "unmapped port",
			dep:     config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "local/tts:1", Ports: []string{"443"}},
			wantErr: true,
		},
		{
			name:    "pull failure",
			dep:     config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "missing/tts:1"},
			wantErr: true,
		},
		{
			name:    "run failure",
			dep:     config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "broken/image:1"},
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := LaunchSpec{Service: "tts", InstanceID: fmt.Sprintf("inst-%d", i), Deployment: tt.dep}
			addr, err := d.Launch(context.Background(), spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestDockerLauncher_StopAndKill(t *testing.T) {
	useMockDocker(t)
	d, err := NewDockerLauncher(context.Background())
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := d.Launch(context.Background(), LaunchSpec{Service: "tts", InstanceID: id,
			Deployment: config.DeploymentSpec{Runtime: config.RuntimeDocker, Image: "local/tts:1"}})
		require.NoError(t, err)
	}
	cid, ok := d.ContainerID("a")
	assert.True(t, ok)
	assert.Equal(t, "abc123def456789", cid)

	require.NoError(t, d.Terminate(context.Background(), "a"))
	require.NoError(t, d.Kill(context.Background(), "b"))
	_, ok = d.ContainerID("a")
	assert.False(t, ok)
	_, ok = d.ContainerID("b")
	assert.False(t, ok)

	assert.NoError(t, d.Terminate(context.Background(), "unknown"))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "conductor-tts-2-01234567", ContainerName(LaunchSpec{Service: "tts", InstanceID: "0123456789", Index: 2}))
}

func TestContainerPort(t *testing.T) {
	tests := map[string]string{
		"8080":                "8080",
		"9000:8080":           "8080",
		"127.0.0.1:9000:8080": "8080",
		"8080/udp":            "8080/udp",
	}
	for in, want := range tests {
		assert.Equal(t, want, containerPort(in), in)
	}
}

func processSpec(id, mode string) LaunchSpec {
	cmd, env := helperCommand(mode)
	return LaunchSpec{
		Service:    "tts",
		InstanceID: id,
		Deployment: config.DeploymentSpec{Runtime: config.RuntimeProcess, Command: cmd, Env: env, Address: "127.0.0.1:9100"},
	}
}

func TestProcessLauncher_TerminateGraceful(t *testing.T) {
	p := NewProcessLauncher()

	addr, err := p.Launch(context.Background(), processSpec("p1", "serve"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", addr)
	assert.True(t, p.Running("p1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Terminate(ctx, "p1"))
	assert.False(t, p.Running("p1"))

	_, ok := p.Wait("p1")
	assert.False(t, ok)
}

func TestProcessLauncher_KillAfterIgnoredTerm(t *testing.T) {
	p := NewProcessLauncher()
	_, err := p.Launch(context.Background(), processSpec("p2", "stubborn"))
	require.NoError(t, err)

	// Give the helper time to install its signal handler.
	time.Sleep(200 * time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = p.Terminate(short, "p2")
	require.Error(t, err)
	assert.True(t, p.Running("p2"))

	require.NoError(t, p.Kill(context.Background(), "p2"))
	assert.False(t, p.Running("p2"))
}

func TestProcessLauncher_WaitReportsExit(t *testing.T) {
	p := NewProcessLauncher()
	_, err := p.Launch(context.Background(), processSpec("p3", "crash"))
	require.NoError(t, err)

	exited, ok := p.Wait("p3")
	require.True(t, ok)

	select {
	case err := <-exited:
		require.Error(t, err)
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode())
	case <-time.After(5 * time.Second):
		t.Fatal("process exit not reported")
	}

	assert.NoError(t, p.Kill(context.Background(), "p3"))
}

func TestProcessLauncher_LaunchErrors(t *testing.T) {
	p := NewProcessLauncher()
	_, err := p.Launch(context.Background(), LaunchSpec{Service: "tts", InstanceID: "x"})
	assert.Error(t, err)

	_, err = p.Launch(context.Background(), LaunchSpec{Service: "tts", InstanceID: "y",
		Deployment: config.DeploymentSpec{Command: []string{"/does/not/exist"}}})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Launch(cancelled, processSpec("z", "serve"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticLauncher(t *testing.T) {
	s := NewStaticLauncher()
	addr, err := s.Launch(context.Background(), LaunchSpec{Service: "bridge", InstanceID: "s1",
		Deployment: config.DeploymentSpec{Runtime: config.RuntimeStatic, Address: "10.0.0.5:8080"}})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:8080", addr)
	assert.NoError(t, s.Terminate(context.Background(), "s1"))
	assert.NoError(t, s.Kill(context.Background(), "s1"))

	_, err = s.Launch(context.Background(), LaunchSpec{Service: "bridge", InstanceID: "s2"})
	assert.Error(t, err)
}

type recordingLauncher struct {
	calls []string
	addr  string
	err   error
}

func (r *recordingLauncher) Launch(_ context.Context, spec LaunchSpec) (string, error) {
	r.calls = append(r.calls, "launch:"+spec.InstanceID)
	return r.addr, r.err
}

func (r *recordingLauncher) Terminate(_ context.Context, id string) error {
	r.calls = append(r.calls, "terminate:"+id)
	return nil
}

func (r *recordingLauncher) Kill(_ context.Context, id string) error {
	r.calls = append(r.calls, "kill:"+id)
	return nil
}

func TestMulti_Dispatch(t *testing.T) {
	proc := &recordingLauncher{addr: "127.0.0.1:1"}
	static := &recordingLauncher{addr: "10.0.0.1:80"}
	m := NewMulti(map[config.Runtime]Launcher{
		config.RuntimeProcess: proc,
		config.RuntimeStatic:  static,
	})
	assert.Equal(t, []config.Runtime{config.RuntimeProcess, config.RuntimeStatic}, m.Runtimes())

	ctx := context.Background()
	addr, err := m.Launch(ctx, LaunchSpec{InstanceID: "a", Deployment: config.DeploymentSpec{Runtime: config.RuntimeProcess}})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", addr)

	addr, err = m.Launch(ctx, LaunchSpec{InstanceID: "b", Deployment: config.DeploymentSpec{Runtime: "STATIC"}})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", addr)

	_, err = m.Launch(ctx, LaunchSpec{InstanceID: "c", Deployment: config.DeploymentSpec{Runtime: config.RuntimeDocker}})
	assert.Error(t, err)

	require.NoError(t, m.Terminate(ctx, "a"))
	require.NoError(t, m.Kill(ctx, "b"))
	require.NoError(t, m.Kill(ctx, "b"))
	require.NoError(t, m.Terminate(ctx, "unknown"))

	assert.Equal(t, []string{"launch:a", "terminate:a"}, proc.calls)
	assert.Equal(t, []string{"launch:b", "kill:b"}, static.calls)

	_, ok := m.Wait("a")
	assert.False(t, ok)
}

func TestMulti_WaitDelegates(t *testing.T) {
	p := NewProcessLauncher()
	m := NewMulti(map[config.Runtime]Launcher{config.RuntimeProcess: p})

	_, err := m.Launch(context.Background(), processSpec("w1", "crash"))
	require.NoError(t, err)

	exited, ok := m.Wait("w1")
	require.True(t, ok)
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process exit not reported")
	}
	require.NoError(t, m.Kill(context.Background(), "w1"))
}
