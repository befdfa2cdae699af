package server

import (
	"bytes"
	"crypto/x509"
	"testing"
	"time"
)

func TestDevTLSConfig_GenerateAndReuse(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := devTLSConfig()
	if err != nil {
		t.Fatalf("devTLSConfig failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Expected 1 certificate, got %d", len(cfg.Certificates))
	}

	cert, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("Failed to parse generated certificate: %v", err)
	}

	// WebTransport 要求自签名证书有效期不超过 14 天
	if cert.NotAfter.Sub(cert.NotBefore) > 14*24*time.Hour {
		t.Errorf("Certificate lifetime too long: %v", cert.NotAfter.Sub(cert.NotBefore))
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Errorf("Unexpected DNS names: %v", cert.DNSNames)
	}

	// 再次加载必须复用落盘的同一份证书，客户端固定的指纹才不会失效
	again, err := devTLSConfig()
	if err != nil {
		t.Fatalf("devTLSConfig reload failed: %v", err)
	}
	if !bytes.Equal(again.Certificates[0].Certificate[0], cfg.Certificates[0].Certificate[0]) {
		t.Error("Expected reload to return the same certificate")
	}
}
