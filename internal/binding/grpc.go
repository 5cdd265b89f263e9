package binding

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc/credentials"

	"github.com/vyrodovalexey/avatls/internal/stack"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

var errNoFactory = errors.New("no bound factory for this side of the handshake")

// Credentials are gRPC transport credentials whose handshakes run on
// sockets from bound factories, so gRPC connections get the alias's
// parameters like any other connection.
type Credentials struct {
	client     *SocketFactory
	server     *ServerSocketFactory
	serverName string
}

// NewCredentials returns gRPC credentials over the given factories. Either
// may be nil when the credentials are only used on one side.
func NewCredentials(client *SocketFactory, server *ServerSocketFactory) *Credentials {
	return &Credentials{client: client, server: server}
}

// ClientHandshake runs the client side of the TLS handshake over rawConn.
func (c *Credentials) ClientHandshake(ctx context.Context, authority string, rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	if c.client == nil {
		return nil, nil, errNoFactory
	}

	host := c.serverName
	if host == "" {
		host = authority
		if h, _, err := net.SplitHostPort(authority); err == nil {
			host = h
		}
	}

	sock, err := c.client.CreateSocketOver(rawConn, host)
	if err != nil {
		return nil, nil, err
	}
	if err := sock.Handshake(ctx); err != nil {
		_ = sock.Close()
		return nil, nil, err
	}
	return sock, tlsInfo(sock), nil
}

// ServerHandshake runs the server side of the TLS handshake over rawConn.
func (c *Credentials) ServerHandshake(rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	if c.server == nil {
		return nil, nil, errNoFactory
	}

	sock, err := c.server.CreateServerConn(rawConn)
	if err != nil {
		return nil, nil, err
	}
	if err := sock.Handshake(context.Background()); err != nil {
		_ = sock.Close()
		return nil, nil, err
	}
	return sock, tlsInfo(sock), nil
}

// Info describes the security protocol. SecurityVersion is the newest
// protocol the bound alias allows, or empty when the alias leaves protocols
// to the stack.
func (c *Credentials) Info() credentials.ProtocolInfo {
	return credentials.ProtocolInfo{
		SecurityProtocol: "tls",
		SecurityVersion:  c.securityVersion(),
		ServerName:       c.serverName,
	}
}

func (c *Credentials) securityVersion() string {
	var protocols []string
	switch {
	case c.client != nil:
		protocols = c.client.Config().Protocols
	case c.server != nil:
		protocols = c.server.Config().Protocols
	}

	_, maxVersion := avatls.VersionRange(protocols)
	if maxVersion == 0 {
		return ""
	}
	version := strings.TrimPrefix(avatls.ProtocolName(maxVersion), "TLSv")
	if !strings.Contains(version, ".") {
		version += ".0"
	}
	return version
}

// Clone returns a copy sharing the same factories.
func (c *Credentials) Clone() credentials.TransportCredentials {
	clone := *c
	return &clone
}

// OverrideServerName sets the name checked against the server certificate.
//
// Deprecated: kept to satisfy credentials.TransportCredentials.
func (c *Credentials) OverrideServerName(name string) error {
	c.serverName = name
	return nil
}

func tlsInfo(sock stack.Socket) credentials.TLSInfo {
	return credentials.TLSInfo{
		State: sock.ConnectionState(),
		CommonAuthInfo: credentials.CommonAuthInfo{
			SecurityLevel: credentials.PrivacyAndIntegrity,
		},
	}
}

var _ credentials.TransportCredentials = (*Credentials)(nil)
