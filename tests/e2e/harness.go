package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"heroes/internal/api"
	"heroes/internal/engine"
	"heroes/internal/storage"
)

type systemUnderTest struct {
	BaseURL  string
	shutdown func()
	restart  func(t *testing.T)
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	if cmd := os.Getenv("HEROES_SERVER_CMD"); cmd != "" {
		sut, err := startExternalServer(t, cmd)
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
		return sut
	}

	if url := os.Getenv("HEROES_SERVER_URL"); url != "" {
		t.Logf("HEROES_SERVER_URL set; using existing server at %s", url)
		return &systemUnderTest{
			BaseURL: url,
			shutdown: func() {
				// External server; nothing to stop.
			},
			restart: nil, // restart not supported without process control
		}
	}

	sut, err := startInProcessServer(t)
	if err != nil {
		t.Fatalf("start in-process server: %v", err)
	}
	return sut
}

// startInProcessServer serves the real router and mutation service over a
// temporary JSON file. Restarting rebuilds both on the same file.
func startInProcessServer(t *testing.T) (*systemUnderTest, error) {
	t.Helper()

	dataFile := filepath.Join(t.TempDir(), "characters.json")
	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	launch := func() (func(), error) {
		store, err := storage.Open(storage.Options{Driver: storage.DriverJSON, Path: dataFile, CreateIfMissing: true})
		if err != nil {
			return nil, err
		}
		svc, cancel := engine.NewService(context.Background(), store, nil, engine.ServiceCfg{DefaultUniverse: engine.DefaultUniverse})

		l, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("listen: %w", err)
		}
		srv := httptest.NewUnstartedServer(api.NewServer(svc))
		srv.Listener = l
		srv.Start()

		return func() {
			srv.Close()
			cancel()
			<-svc.Done()
			_ = store.Close()
		}, nil
	}

	stop, err := launch()
	if err != nil {
		return nil, err
	}

	restart := func(t *testing.T) {
		t.Helper()
		stop()
		next, err := launch()
		if err != nil {
			t.Fatalf("restart server: %v", err)
		}
		stop = next
	}

	return &systemUnderTest{
		BaseURL:  "http://" + addr,
		shutdown: func() { stop() },
		restart:  restart,
	}, nil
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "heroes-e2e-data-*")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	launcher := func() (*exec.Cmd, string, error) {
		ctx, cancel := context.WithCancel(context.Background())
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("HEROES_ENDPOINT=%s", addr),
			fmt.Sprintf("HEROES_DATA_FILE=%s", filepath.Join(dataDir, "characters.json")),
			"HEROES_CREATE_IF_MISSING=true",
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			cancel()
			return nil, "", fmt.Errorf("cmd start: %w", err)
		}
		baseURL := "http://" + addr
		if err := waitForReady(baseURL, 10*time.Second); err != nil {
			_ = cmd.Process.Kill()
			cancel()
			return nil, "", fmt.Errorf("wait for ready: %w", err)
		}
		return cmd, baseURL, nil
	}

	cmd, baseURL, err := launcher()
	if err != nil {
		return nil, err
	}

	restart := func(t *testing.T) {
		t.Helper()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}

		newCmd, _, err := launcher()
		if err != nil {
			t.Fatalf("restart server: %v", err)
		}
		cmd = newCmd
	}

	shutdown := func() {
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
		_ = os.RemoveAll(dataDir)
	}

	return &systemUnderTest{
		BaseURL:  baseURL,
		shutdown: shutdown,
		restart:  restart,
	}, nil
}

func waitForReady(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}
