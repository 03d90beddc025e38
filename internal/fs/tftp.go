package fs

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pin/tftp"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Receiver fetches a file from a TFTP server. *tftp.Client implements it.
type Receiver interface {
	Receive(filename string, mode string) (io.WriterTo, error)
}

// NewTFTPReceiver connects a client to server ("host:port"; port 69 is
// assumed when absent)
func NewTFTPReceiver(server string, timeout time.Duration, retries int) (Receiver, error) {
	if !strings.Contains(server, ":") {
		server += ":69"
	}
	client, err := tftp.NewClient(server)
	if err != nil {
		return nil, fmt.Errorf("tftp client for %s: %w", server, err)
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	if retries > 0 {
		client.SetRetries(retries)
	}
	return client, nil
}

// TFTPSource mounts a TFTP server as a read-only filesystem. Downloaded
// files are kept so a Size followed by a Read transfers once.
type TFTPSource struct {
	client Receiver
	cache  map[string][]byte
}

// NewTFTPSource wraps a receiver
func NewTFTPSource(client Receiver) *TFTPSource {
	return &TFTPSource{client: client, cache: make(map[string][]byte)}
}

// Mount implements Source
func (s *TFTPSource) Mount(c *Context) error {
	return c.Attach(TypeTFTP, &tftpBackend{src: s})
}

// Forget drops cached downloads
func (s *TFTPSource) Forget() {
	s.cache = make(map[string][]byte)
}

func (s *TFTPSource) fetch(name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "/")
	if data, ok := s.cache[name]; ok {
		return data, nil
	}
	wt, err := s.client.Receive(name, "octet")
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("tftp %s: %w", name, types.ErrNotFound)
		}
		return nil, fmt.Errorf("tftp %s: %w", name, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", name, err)
	}
	s.cache[name] = buf.Bytes()
	return buf.Bytes(), nil
}

type tftpBackend struct {
	src *TFTPSource
}

func (b *tftpBackend) Size(name string) (int64, error) {
	data, err := b.src.fetch(name)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (b *tftpBackend) Read(name string, offset, length int64) ([]byte, error) {
	data, err := b.src.fetch(name)
	if err != nil {
		return nil, err
	}
	return sliceFile(name, data, offset, length)
}

func (b *tftpBackend) Close() error {
	return nil
}
