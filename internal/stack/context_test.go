package stack

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avatls "github.com/vyrodovalexey/avatls/internal/tls"
	"github.com/vyrodovalexey/avatls/test/helpers"
)

func newTestContexts(t *testing.T) (client, server Context) {
	t.Helper()

	certs, err := helpers.GenerateTestCertificates()
	require.NoError(t, err)

	client, err = NewContext("TLS", certs.ClientTLSConfig())
	require.NoError(t, err)
	server, err = NewContext("TLS", certs.ServerTLSConfig())
	require.NoError(t, err)
	return client, server
}

// serve accepts one connection, echoes one line and reports the handshake error.
func serve(t *testing.T, ln ServerSocket) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		sock := conn.(Socket)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sock.Handshake(ctx); err != nil {
			errCh <- err
			return
		}

		buf := make([]byte, 4)
		if _, err := io.ReadFull(sock, buf); err != nil {
			errCh <- err
			return
		}
		_, err = sock.Write(buf)
		errCh <- err
	}()
	return errCh
}

func TestNewContext_Protocol(t *testing.T) {
	tests := []struct {
		name        string
		protocol    string
		wantErr     bool
		wantMax     uint16
		wantVersion []string
	}{
		{
			name:        "generic",
			protocol:    "TLS",
			wantMax:     tls.VersionTLS13,
			wantVersion: []string{avatls.ProtocolTLS13, avatls.ProtocolTLS12},
		},
		{
			name:        "version caps maximum",
			protocol:    "TLSv1.2",
			wantMax:     tls.VersionTLS12,
			wantVersion: []string{avatls.ProtocolTLS12},
		},
		{
			name:     "unknown",
			protocol: "SSLv3",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := NewContext(tt.protocol, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, avatls.ErrUnknownProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.protocol, ctx.Protocol())
			assert.Equal(t, tt.wantVersion, ctx.SupportedParameters().Protocols)
			assert.Equal(t, tt.wantVersion, ctx.DefaultParameters().Protocols)
		})
	}
}

func TestContext_SupportedCipherSuites(t *testing.T) {
	ctx, err := NewContext("TLS", nil, WithSupportedCipherSuites([]string{
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_AES_128_GCM_SHA256",
	}))
	require.NoError(t, err)

	sf := ctx.SocketFactory()
	assert.Len(t, sf.SupportedCipherSuites(), 2)
	assert.Subset(t, sf.SupportedCipherSuites(), sf.DefaultCipherSuites())

	ssf := ctx.ServerSocketFactory()
	assert.Equal(t, sf.SupportedCipherSuites(), ssf.SupportedCipherSuites())
}

func TestContext_DefaultParametersAreCopies(t *testing.T) {
	ctx, err := NewContext("TLS", nil)
	require.NoError(t, err)

	p := ctx.DefaultParameters()
	p.Protocols = []string{avatls.ProtocolTLS10}

	assert.NotEqual(t, p.Protocols, ctx.DefaultParameters().Protocols)
}

func TestSocket_Handshake(t *testing.T) {
	clientCtx, serverCtx := newTestContexts(t)

	ln, err := serverCtx.ServerSocketFactory().CreateServerSocket(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	errCh := serve(t, ln)

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	sock, err := clientCtx.SocketFactory().CreateSocket(context.Background(), "tcp", net.JoinHostPort(helpers.ServerHost, port))
	require.NoError(t, err)
	defer sock.Close()

	assert.Equal(t, tls.ConnectionState{}, sock.ConnectionState())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sock.Handshake(ctx))

	_, err = sock.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(sock, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, <-errCh)
	assert.True(t, sock.ConnectionState().HandshakeComplete)
}

func TestSocket_ParametersApplyPerConnection(t *testing.T) {
	clientCtx, serverCtx := newTestContexts(t)

	ln, err := serverCtx.ServerSocketFactory().CreateServerSocket(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	errCh := serve(t, ln)

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	sock, err := clientCtx.SocketFactory().CreateSocket(context.Background(), "tcp", net.JoinHostPort(helpers.ServerHost, port))
	require.NoError(t, err)
	defer sock.Close()

	p := sock.Parameters()
	p.Protocols = []string{avatls.ProtocolTLS12}
	p.CipherSuites = []string{"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384"}
	sock.SetParameters(p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sock.Handshake(ctx))

	_, err = sock.Write([]byte("ping"))
	require.NoError(t, err)
	_, err = io.ReadFull(sock, make([]byte, 4))
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	state := sock.ConnectionState()
	assert.Equal(t, uint16(tls.VersionTLS12), state.Version)
	assert.Equal(t, tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, state.CipherSuite)

	// The factory defaults are untouched.
	assert.NotEqual(t, p.Protocols, clientCtx.DefaultParameters().Protocols)
}

func TestSocket_EndpointIdentification(t *testing.T) {
	tests := []struct {
		name    string
		algo    string
		wantErr bool
	}{
		{name: "hostname verification rejects wrong host", algo: EndpointIdentificationHTTPS, wantErr: true},
		{name: "chain only accepts wrong host", algo: "", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientCtx, serverCtx := newTestContexts(t)

			ln, err := serverCtx.ServerSocketFactory().CreateServerSocket(context.Background(), "tcp", "127.0.0.1:0")
			require.NoError(t, err)
			defer ln.Close()
			_ = serve(t, ln)

			raw, err := net.Dial("tcp", ln.Addr().String())
			require.NoError(t, err)

			sock, err := clientCtx.SocketFactory().CreateSocketOver(raw, "wrong.example.com")
			require.NoError(t, err)
			defer sock.Close()

			p := sock.Parameters()
			p.EndpointIdentification = tt.algo
			sock.SetParameters(p)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = sock.Handshake(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSocket_ChainOnlyStillRejectsUntrustedRoots(t *testing.T) {
	_, serverCtx := newTestContexts(t)

	// A client that trusts a different CA.
	other, err := helpers.GenerateTestCertificates()
	require.NoError(t, err)
	clientCtx, err := NewContext("TLS", other.ClientTLSConfig())
	require.NoError(t, err)

	ln, err := serverCtx.ServerSocketFactory().CreateServerSocket(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_ = serve(t, ln)

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	sock, err := clientCtx.SocketFactory().CreateSocketOver(raw, helpers.ServerHost)
	require.NoError(t, err)
	defer sock.Close()

	p := sock.Parameters()
	p.EndpointIdentification = ""
	sock.SetParameters(p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, sock.Handshake(ctx))
}

func TestListener_ParametersInheritedByAcceptedConns(t *testing.T) {
	_, serverCtx := newTestContexts(t)

	ln, err := serverCtx.ServerSocketFactory().CreateServerSocket(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := ln.Parameters()
	p.ClientAuth = ClientAuthNeed
	ln.SetParameters(p)

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			_ = c.Close()
		}
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	sock := conn.(*Conn)
	assert.False(t, sock.IsClient())
	assert.Equal(t, ClientAuthNeed, sock.Parameters().ClientAuth)
	assert.Equal(t, ln.SupportedCipherSuites(), sock.SupportedCipherSuites())
}
