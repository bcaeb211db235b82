package testkit

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harvestlab/harvest/internal/app"
	"github.com/harvestlab/harvest/internal/config"
	"github.com/harvestlab/harvest/internal/search"
)

// WriteTree materializes a source tree under a fresh temp root and
// returns the root path.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// ServeOptions configures NewServeSettings
type ServeOptions struct {
	Port     int    // Uses free port if 0
	AuthType string // Defaults to "none"
	Host     string // Defaults to "localhost"
	APIKeys  []string
}

// NewServeSettings creates resolved settings suitable for a test API server
func NewServeSettings(t testing.TB, opts *ServeOptions) *config.Settings {
	t.Helper()

	port := 0
	authType := config.AuthTypeNone
	host := "localhost"
	var apiKeys []string

	if opts != nil {
		if opts.Port != 0 {
			port = opts.Port
		}
		if opts.AuthType != "" {
			authType = opts.AuthType
		}
		if opts.Host != "" {
			host = opts.Host
		}
		apiKeys = opts.APIKeys
	}
	if port == 0 {
		port = MustGetFreePort(t)
	}

	return &config.Settings{
		Serve:  config.ServeSettings{Host: host, Port: port},
		Search: config.SearchSettings{MaxResults: 20},
		Auth:   config.AuthSettings{Type: authType, APIKeys: apiKeys},
	}
}

// StartAPIServer runs a real API server for the given snapshot service and
// returns its base URL. The server and the service are torn down with the
// test.
func StartAPIServer(t testing.TB, svc *search.Service, settings *config.Settings) string {
	t.Helper()

	srv, err := app.NewAPIServer(svc, settings, "test")
	if err != nil {
		t.Fatalf("NewAPIServer: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	baseURL := "http://" + srv.Addr
	waitForServer(t, baseURL+"/health", errCh)
	return baseURL
}

func waitForServer(t testing.TB, url string, errCh <-chan error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-errCh:
			t.Fatalf("server failed to start: %v", err)
		default:
		}
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not become reachable")
}
