package binding

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Transport returns an HTTP transport whose TLS connections come from f.
func Transport(f *SocketFactory) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			sock, err := f.CreateSocket(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := sock.Handshake(ctx); err != nil {
				_ = sock.Close()
				return nil, err
			}
			// net/http only reports TLS state for *tls.Conn.
			if tc, ok := sock.(interface{ TLS() *tls.Conn }); ok {
				return tc.TLS(), nil
			}
			return sock, nil
		},
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
