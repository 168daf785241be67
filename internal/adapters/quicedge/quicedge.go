// Package quicedge runs a thin QUIC companion listener alongside the
// primary RUDP transport, using github.com/quic-go/quic-go directly. The
// teacher pack (cppla-moto) carries quic-go in its go.mod but never
// actually dials or listens with it; this package is where that
// dependency is first exercised. Each accepted QUIC connection opens one
// bidirectional stream carrying the same length-prefixed JSON frames as
// internal/tcpchat, so a QUIC client gets the same room/heartbeat
// semantics as a TCP client, just over a 0-RTT-capable transport.
package quicedge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/wqdsca/policethief-go/internal/heartbeat"
	"github.com/wqdsca/policethief-go/internal/room"
	"github.com/wqdsca/policethief-go/internal/tcpchat"
)

// selfSignedTLSConfig generates an ephemeral ECDSA certificate for the
// QUIC listener. There is no external CA in scope for this companion
// path; quic-go requires a tls.Config regardless, so one is minted at
// startup the way quic-go's own example servers do.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("quicedge: generate key: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("quicedge: create certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("quicedge: marshal key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("quicedge: build key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"policethief-quicedge"},
	}, nil
}

// Listener accepts QUIC connections and serves each one's first stream
// with the tcpchat framing.
type Listener struct {
	addr   string
	fabric *room.Fabric
	hbCfg  heartbeat.PathConfig
}

// New builds a Listener bound to addr.
func New(addr string, fabric *room.Fabric, hbCfg heartbeat.PathConfig) *Listener {
	return &Listener{addr: addr, fabric: fabric, hbCfg: hbCfg}
}

// Serve listens on l.addr until ctx is canceled, accepting QUIC
// connections and handling one stream per connection.
func (l *Listener) Serve(ctx context.Context) error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return err
	}

	ln, err := quic.ListenAddr(l.addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  l.hbCfg.Timeout,
		KeepAlivePeriod: l.hbCfg.Interval,
	})
	if err != nil {
		return fmt.Errorf("quicedge: listen %s: %w", l.addr, err)
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn quic.Connection) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream accept failed")
		return
	}
	rw := &streamConn{Stream: stream, conn: conn}
	if err := tcpchat.HandleConn(rw, l.fabric, l.hbCfg); err != nil {
		conn.CloseWithError(1, err.Error())
		return
	}
	conn.CloseWithError(0, "")
}
