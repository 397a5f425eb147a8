package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"
)

// awsNitroRootCA is the AWS Nitro Enclaves root (Root-G1, P-384, valid until 2049-10-28).
// https://docs.aws.amazon.com/enclaves/latest/user/verify-root.html
const awsNitroRootCA = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

// ParseCertificate decodes a base64 DER certificate as carried in NSM documents.
func ParseCertificate(certB64 string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

// ValidateCertificateChain checks that leaf chains to the AWS Nitro root through the
// document's CA bundle, with validity periods evaluated at the attestation time.
func ValidateCertificateChain(leaf *x509.Certificate, caBundleB64 []string, at time.Time) error {
	return validateCertificateChain(leaf, caBundleB64, at, awsNitroRootCA)
}

func validateCertificateChain(leaf *x509.Certificate, caBundleB64 []string, at time.Time, rootPEM string) error {
	key, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || key.Curve != elliptic.P384() {
		return fmt.Errorf("leaf certificate %q does not carry a P-384 key", leaf.Subject.CommonName)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(rootPEM)) {
		return fmt.Errorf("failed to parse root CA")
	}

	intermediates := x509.NewCertPool()
	for i, caB64 := range caBundleB64 {
		ca, err := ParseCertificate(caB64)
		if err != nil {
			return fmt.Errorf("CA bundle entry %d: %w", i, err)
		}
		intermediates.AddCert(ca)
	}

	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		CurrentTime:   at,
	})
	if err != nil {
		return fmt.Errorf("certificate chain validation failed: %w", err)
	}
	if len(chains) == 0 {
		return fmt.Errorf("certificate chain validation failed: no chain to the root")
	}
	return nil
}
