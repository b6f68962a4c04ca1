package broker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizload/internal/config"
)

func writeTestCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "quizload test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func TestTLSConfigLoadsCA(t *testing.T) {
	tc, err := TLSConfig(writeTestCA(t), false)
	require.NoError(t, err)
	require.NotNil(t, tc.RootCAs)
	require.False(t, tc.InsecureSkipVerify)
}

func TestTLSConfigRejectsBadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a cert"), 0o600))
	_, err := TLSConfig(path, false)
	require.Error(t, err)

	_, err = TLSConfig(filepath.Join(t.TempDir(), "missing.pem"), false)
	require.Error(t, err)
}

func TestNewPahoDialer(t *testing.T) {
	_, err := NewPahoDialer(config.Broker{}, nil)
	require.Error(t, err)

	d, err := NewPahoDialer(config.Broker{URL: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	require.Nil(t, d.tls)

	d, err = NewPahoDialer(config.Broker{URL: "ssl://localhost:8883", InsecureSkipVerify: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, d.tls)
	require.True(t, d.tls.InsecureSkipVerify)

	o := d.clientOptions(Options{ClientID: "SIMMAC0001_abcdef", Username: "SIMMAC0001", Password: "pw"})
	require.Equal(t, "SIMMAC0001_abcdef", o.ClientID)
	require.Equal(t, "SIMMAC0001", o.Username)
	require.False(t, o.AutoReconnect)
	require.True(t, o.CleanSession)
}

func TestDialCancelledContext(t *testing.T) {
	d, err := NewPahoDialer(config.Broker{URL: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Dial(ctx, Options{ClientID: "x"}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTopics(t *testing.T) {
	require.Equal(t, "system/client/SIMMAC0000_a1b2c3/info", InfoTopic("SIMMAC0000_a1b2c3"))
	require.Equal(t, byte(1), AtLeastOnce)
}
