package main

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/sha3"
)

const (
	formatHex    = "hex"
	formatBase64 = "base64"

	// maxInputFileSize bounds every file the CLI reads.
	maxInputFileSize = 64 << 20
)

// keyFile is the on-disk form of a key pair or a public key.
type keyFile struct {
	Scheme    string `json:"scheme"`
	Encoding  string `json:"encoding"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key,omitempty"`
	CreatedAt string `json:"created_at"`
	// KeyHMAC detects accidental corruption of the secret key; it is keyed
	// by the public key and is not an authenticity check.
	KeyHMAC string `json:"key_hmac,omitempty"`
}

type encapsulationFile struct {
	Scheme       string `json:"scheme"`
	Encoding     string `json:"encoding"`
	Ciphertext   string `json:"ciphertext,omitempty"`
	SharedSecret string `json:"shared_secret"`
}

type derivedKeysFile struct {
	Encoding string   `json:"encoding"`
	Keys     []string `json:"keys"`
}

type sealedFile struct {
	Scheme   string `json:"scheme"`
	Encoding string `json:"encoding"`
	Sealed   string `json:"sealed"`
}

func outputFormat(c *cli.Context) (string, error) {
	switch f := c.String("format"); f {
	case formatHex, formatBase64:
		return f, nil
	default:
		return "", errors.Errorf("unknown --format %q, want hex or base64", f)
	}
}

func encodeBytes(data []byte, format string) string {
	if format == formatHex {
		return hex.EncodeToString(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func decodeBytes(s, format string) ([]byte, error) {
	switch format {
	case formatHex:
		return hex.DecodeString(s)
	case formatBase64, "":
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, errors.Errorf("unknown encoding %q", format)
	}
}

func keyHMAC(publicKey, secretKey string) string {
	h := hmac.New(sha3.New256, []byte(publicKey))
	h.Write([]byte(secretKey))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// readJSON loads a JSON file of bounded size into v.
func readJSON(filename string, v interface{}) error {
	info, err := os.Stat(filename)
	if err != nil {
		return errors.Wrap(err, "failed to stat file")
	}
	if info.Size() > maxInputFileSize {
		return errors.Errorf("input file too large: %d > %d bytes", info.Size(), maxInputFileSize)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "%s is not a %s file", filename, appName)
	}
	return nil
}

func loadKeyFile(filename string, needSecret bool) (*keyFile, error) {
	var kf keyFile
	if err := readJSON(filename, &kf); err != nil {
		return nil, err
	}
	if kf.PublicKey == "" {
		return nil, errors.Errorf("%s: missing public_key", filename)
	}
	if needSecret {
		if kf.SecretKey == "" {
			return nil, errors.Errorf("%s: missing secret_key", filename)
		}
		if kf.KeyHMAC != "" && !hmac.Equal([]byte(kf.KeyHMAC), []byte(keyHMAC(kf.PublicKey, kf.SecretKey))) {
			return nil, errors.Errorf("%s: key_hmac mismatch, the key file is corrupted", filename)
		}
	}
	return &kf, nil
}

// writeOutput writes data to filename with owner-only permissions, or to
// the app's stdout when filename is empty.
func writeOutput(c *cli.Context, data []byte, filename string) error {
	if filename == "" {
		_, err := c.App.Writer.Write(append(data, '\n'))
		return err
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "writing output file")
	}
	// enforce 0600 even if the file already existed
	return os.Chmod(filename, 0600)
}

func writeJSON(c *cli.Context, v interface{}, filename string) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling output")
	}
	return writeOutput(c, out, filename)
}
