package resolve

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/rpcclient"
)

// CreqController runs computations in a contained subprocess: another
// instance of the same binary acting as an RPC server. If the subprocess
// crashes or hangs, RPC timeouts surface as errors and Close kills it.
type CreqController struct {
	name   string
	port   int
	cmd    *exec.Cmd
	client *rpcclient.Client
}

const (
	containedStartTimeout = 10 * time.Second
	containedPingInterval = 50 * time.Millisecond
)

// StartContained spawns the subprocess and waits until it serves. binary
// "" means the current executable.
func StartContained(ctx context.Context, binary string) (*CreqController, error) {
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot locate own binary: %w", err)
		}
		binary = exe
	}
	port, err := ephemeralPort()
	if err != nil {
		return nil, err
	}
	name := "contained-" + uuid.NewString()
	cmd := exec.Command(
		binary, "serve",
		"--port", strconv.Itoa(port),
		"--contained",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start contained process: %w", err)
	}

	client, err := rpcclient.New(name, fmt.Sprintf("localhost:%d", port))
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	c := &CreqController{name: name, port: port, cmd: cmd, client: client}
	if err := c.waitReady(ctx); err != nil {
		c.Close()
		return nil, err
	}
	lg := log.WithComponent("contained")
	lg.Debug().
		Str("name", name).Int("port", port).Int("pid", cmd.Process.Pid).
		Msg("contained process started")
	return c, nil
}

// ephemeralPort reserves a free TCP port. The subprocess binds it right
// after release; the window is accepted.
func ephemeralPort() (int, error) {
	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()
	return port, nil
}

func (c *CreqController) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(containedStartTimeout)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := c.client.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return remote.Errorf("contained process did not come up: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containedPingInterval):
		}
	}
}

// Name returns the controller's generated name.
func (c *CreqController) Name() string {
	return c.name
}

// Client returns the proxy reaching the subprocess.
func (c *CreqController) Client() *rpcclient.Client {
	return c.client
}

// Delegate ships a serialized request to the subprocess as an async
// resolution and waits for its result.
func (c *CreqController) Delegate(ctx context.Context, cfg config.Config, seriReq []byte) (remote.SerializedResult, error) {
	remoteID, err := c.client.SubmitAsync(ctx, cfg, seriReq)
	if err != nil {
		return remote.SerializedResult{}, err
	}
	defer c.client.FinishAsync(context.Background(), remoteID)
	if err := remote.WaitUntilFinished(ctx, c.client, remoteID); err != nil {
		return remote.SerializedResult{}, err
	}
	return c.client.GetAsyncResponse(ctx, remoteID)
}

// Close kills the subprocess and releases the connection. Safe to call
// more than once.
func (c *CreqController) Close() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
		c.cmd = nil
	}
}

// ContainedPool recycles contained subprocesses: starting one costs a
// process spawn plus an RPC handshake, so successful controllers are
// returned for reuse.
type ContainedPool struct {
	binary string

	mu   sync.Mutex
	idle []*CreqController
}

func NewContainedPool(binary string) *ContainedPool {
	return &ContainedPool{binary: binary}
}

// Get returns an idle controller or starts a fresh one.
func (p *ContainedPool) Get(ctx context.Context) (*CreqController, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()
	return StartContained(ctx, p.binary)
}

// Put returns a healthy controller to the pool.
func (p *ContainedPool) Put(c *CreqController) {
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Close kills every pooled subprocess.
func (p *ContainedPool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range idle {
		c.Close()
	}
}
