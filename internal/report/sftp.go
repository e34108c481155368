// Package report uploads the audit file of a run to an SFTP server.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"reactivatetool/internal/common/logger"
)

const dialTimeout = 20 * time.Second

// Config describes the SFTP destination. Password authentication only.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	RemoteDir string
	// HostKey is the expected SHA256 fingerprint of the server key, as printed
	// by ssh-keygen -l ("SHA256:..."). Empty accepts any key.
	HostKey string
}

// Upload copies localPath into cfg.RemoteDir, creating the directory if
// needed, and returns the remote path.
func Upload(ctx context.Context, cfg Config, localPath string, log *slog.Logger) (string, error) {
	log = logger.OrDiscard(log)
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return "", fmt.Errorf("sftp: host, user and password are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "."
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.HostKey != "" {
		hostKey = fingerprintCallback(cfg.HostKey)
	} else {
		log.Warn("SFTP host key not pinned; accepting any server key", "host", cfg.Host)
	}

	client, err := dial(ctx, cfg, hostKey)
	if err != nil {
		return "", err
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return "", fmt.Errorf("sftp: new client: %w", err)
	}
	defer sc.Close()

	if err := sc.MkdirAll(cfg.RemoteDir); err != nil {
		return "", fmt.Errorf("sftp: mkdir %s: %w", cfg.RemoteDir, err)
	}

	remotePath := path.Join(cfg.RemoteDir, filepath.Base(localPath))
	dst, err := sc.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: create remote file: %w", err)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		return "", fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("sftp: close remote file: %w", err)
	}
	log.Debug("Uploaded report", "remotePath", remotePath, "bytes", n)
	return remotePath, nil
}

func dial(ctx context.Context, cfg Config, hostKey ssh.HostKeyCallback) (*ssh.Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         dialTimeout,
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial error: %w", err)
	}
	// The handshake does not watch ctx; closing the conn aborts it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("sftp: handshake: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func fingerprintCallback(want string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if got := ssh.FingerprintSHA256(key); got != want {
			return fmt.Errorf("host key mismatch for %s: got %s", hostname, got)
		}
		return nil
	}
}
