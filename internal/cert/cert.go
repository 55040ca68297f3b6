// Package cert produces the gatekeeper's TLS certificate.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"
)

// DefaultValidity is how long a self-signed gatekeeper certificate lasts.
const DefaultValidity = 10 * 365 * 24 * time.Hour

// DefaultNames are always part of the certificate's subject names so the
// gatekeeper is reachable inside the stack and from the host.
var DefaultNames = []string{"localhost", "127.0.0.1", "gatekeeper"}

// ErrNoNames is returned when asked to issue a certificate for no names.
var ErrNoNames = errors.New("cert: no subject names")

// Result is what an Issuer returns. Code 0 means success; any other value
// means Key and Cert must not be used.
type Result struct {
	Code int
	Key  []byte
	Cert []byte
}

// Issuer creates a key and certificate for the given subject names.
type Issuer interface {
	Issue(cns []string) (*Result, error)
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(cns []string) (*Result, error)

// Issue calls f.
func (f IssuerFunc) Issue(cns []string) (*Result, error) {
	return f(cns)
}

// CNs turns the operator's comma or space separated host list into the
// certificate's subject names, prefixed with DefaultNames and without
// duplicates.
func CNs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	seen := make(map[string]bool)
	var out []string
	for _, name := range append(append([]string(nil), DefaultNames...), fields...) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// SelfSigned issues ECDSA P-256 certificates signed by their own key.
type SelfSigned struct {
	Validity time.Duration
	now      func() time.Time
}

// Issue implements Issuer.
func (s SelfSigned) Issue(cns []string) (*Result, error) {
	if len(cns) == 0 {
		return nil, ErrNoNames
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	validity := s.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	notBefore := now().Add(-time.Hour)

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName(cns)},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, name := range cns {
		if ip := net.ParseIP(name); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, name)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	return &Result{
		Code: 0,
		Key:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		Cert: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
	}, nil
}

// commonName picks the first operator-supplied name, falling back to the
// service name.
func commonName(cns []string) string {
	defaults := make(map[string]bool, len(DefaultNames))
	for _, name := range DefaultNames {
		defaults[name] = true
	}
	for _, name := range cns {
		if !defaults[name] {
			return name
		}
	}
	return "gatekeeper"
}

// Parse decodes a PEM certificate.
func Parse(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	c, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return c, nil
}

// Verify checks that certPEM is a certificate valid at the given time.
func Verify(certPEM []byte, at time.Time) error {
	c, err := Parse(certPEM)
	if err != nil {
		return err
	}
	if at.Before(c.NotBefore) {
		return fmt.Errorf("certificate not yet valid")
	}
	if at.After(c.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}
	return nil
}
