package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"time"
)

const (
	devCertFile = "chat_dev_cert.pem"
	devKeyFile  = "chat_dev_key.pem"

	// WebTransport 对自签名证书的有效期上限是 14 天，留一点余量
	devCertLifetime = 10 * 24 * time.Hour
)

// devTLSConfig 加载或生成开发环境自签名证书
// 首次启动时生成并落盘，之后复用同一份，方便客户端固定指纹
func devTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(devCertFile, devKeyFile)
	if err != nil {
		slog.Info("Generating dev certificate", "cert", devCertFile)
		if err := generateDevCert(); err != nil {
			return nil, err
		}
		cert, err = tls.LoadX509KeyPair(devCertFile, devKeyFile)
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h3", "webtransport"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func generateDevCert() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Chat Express Dev"},
		},
		NotBefore:             now.Add(-1 * time.Hour), // 容忍少量时钟偏差
		NotAfter:              now.Add(devCertLifetime),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	if err := writePEM(devCertFile, "CERTIFICATE", certDER, 0644); err != nil {
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	if err := writePEM(devKeyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return err
	}

	slog.Info("Dev certificate saved", "cert", devCertFile, "key", devKeyFile)
	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	return pem.Encode(out, &pem.Block{Type: blockType, Bytes: der})
}
