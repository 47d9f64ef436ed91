package tls

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
)

func TestLoadTLSConfig_SelfSigned(t *testing.T) {
	cfg, err := LoadTLSConfig(Config{Hosts: []string{"shop.example", "10.0.0.5"}})
	if err != nil {
		t.Fatalf("LoadTLSConfig failed: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("Expected TLS 1.2 minimum, got %x", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Expected one certificate, got %d", len(cfg.Certificates))
	}

	cert, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	if err := cert.VerifyHostname("shop.example"); err != nil {
		t.Errorf("Expected shop.example in certificate: %v", err)
	}
	if err := cert.VerifyHostname("10.0.0.5"); err != nil {
		t.Errorf("Expected 10.0.0.5 in certificate: %v", err)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Errorf("Expected localhost in certificate: %v", err)
	}
}

func TestLoadTLSConfig_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTLSConfig(Config{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	})
	if err == nil {
		t.Error("Expected error for missing key pair")
	}
}
