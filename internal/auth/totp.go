package auth

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/image/draw"
)

const totpIssuer = "tgbotctl"

// Enrollment is a freshly generated TOTP secret plus its rendered QR code,
// ready to be sent back through chat as a photo.
type Enrollment struct {
	Secret  string
	URL     string
	PNG     []byte
}

// Enroll generates a new TOTP secret for userID and renders it as a scaled
// QR PNG. Enroll does not store the secret; the caller persists it via
// Manager.SetTOTPSecret.
func Enroll(userID int64, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: generate totp key: %w", err)
	}

	png, err := renderQR(key)
	if err != nil {
		return nil, err
	}

	return &Enrollment{Secret: key.Secret(), URL: key.String(), PNG: png}, nil
}

func renderQR(key *otp.Key) ([]byte, error) {
	code, err := qr.Encode(key.String(), qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("auth: encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, 256, 256)
	if err != nil {
		return nil, fmt.Errorf("auth: scale qr: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(dst, dst.Bounds(), scaled, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("auth: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidateCode checks a 6-digit TOTP code for userID. Returns false if the
// user has no enrolled secret.
func (m *Manager) ValidateCode(userID int64, code string) bool {
	m.mu.Lock()
	entry, ok := m.entries[userID]
	m.mu.Unlock()
	if !ok || entry.TOTPSecret == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, entry.TOTPSecret, m.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
