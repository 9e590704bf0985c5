// Package auth extracts a stable client identity from the transport's
// verified peer certificate, trusting the certificate's Common Name once at
// least one verified chain is present.
package auth

import (
	"context"
	"errors"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// ErrUnauthenticated indicates the request carried no verified peer
// certificate chain.
var ErrUnauthenticated = errors.New("auth: no verified client certificate")

// ClientName is the Common Name extracted from a client's validated mTLS
// certificate. Equality is byte-exact; once constructed, a ClientName is
// never mutated.
type ClientName string

// FromContext extracts the ClientName from ctx's gRPC peer info, which the
// transport has already verified against the configured client CA. A
// missing certificate chain, or a first verified chain with no certificates,
// returns ErrUnauthenticated. A certificate with no CommonName indicates the
// CA signed a nonconforming certificate — that contract violation is a
// fatal programmer/PKI error, not a recoverable one, so it panics rather
// than silently treating the caller as anonymous.
func FromContext(ctx context.Context) (ClientName, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", ErrUnauthenticated
	}
	if len(tlsInfo.State.VerifiedChains) == 0 || len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", ErrUnauthenticated
	}

	cn := tlsInfo.State.VerifiedChains[0][0].Subject.CommonName
	if cn == "" {
		panic("auth: verified client certificate has no Common Name")
	}
	return ClientName(cn), nil
}
