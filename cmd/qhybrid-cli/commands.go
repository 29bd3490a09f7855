package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/kdf"
	"github.com/BackendStack21/qhybrid-go/kem"
	"github.com/BackendStack21/qhybrid-go/metrics"
	"github.com/BackendStack21/qhybrid-go/utils"
)

func (st *cliState) keygen(c *cli.Context) error {
	format, _ := outputFormat(c)
	k, err := st.newKEM(c)
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		pk *kem.PublicKey
		sk *kem.SecretKey
	)
	if seedHex := c.String("seed"); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return errors.Wrap(err, "invalid --seed")
		}
		defer utils.Zeroize(seed)
		pk, sk, err = k.KeyPairFromSeed(seed)
		if err != nil {
			return err
		}
	} else {
		pk, sk, err = k.KeyPair()
		if err != nil {
			return err
		}
	}
	defer sk.Zeroize()
	st.log.Info().Str("scheme", k.Name()).Dur("elapsed", time.Since(start)).Msg("generated key pair")

	skBytes := sk.Bytes()
	defer utils.Zeroize(skBytes)
	kf := keyFile{
		Scheme:    k.Name(),
		Encoding:  format,
		PublicKey: encodeBytes(pk.Bytes(), format),
		SecretKey: encodeBytes(skBytes, format),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	kf.KeyHMAC = keyHMAC(kf.PublicKey, kf.SecretKey)

	if pubOut := c.String("public-output"); pubOut != "" {
		pub := kf
		pub.SecretKey, pub.KeyHMAC = "", ""
		if err := writeJSON(c, pub, pubOut); err != nil {
			return err
		}
	}
	return writeJSON(c, kf, c.String("output"))
}

func (st *cliState) loadPublicKey(k *kem.KEM, filename string) (*kem.PublicKey, error) {
	kf, err := loadKeyFile(filename, false)
	if err != nil {
		return nil, err
	}
	if kf.Scheme != k.Name() {
		return nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "%s holds a %s key, selected %s", filename, kf.Scheme, k.Name())
	}
	raw, err := decodeBytes(kf.PublicKey, kf.Encoding)
	if err != nil {
		return nil, errors.Wrap(err, "decoding public key")
	}
	return k.ParsePublicKey(raw)
}

func (st *cliState) loadSecretKey(k *kem.KEM, filename string) (*kem.SecretKey, error) {
	kf, err := loadKeyFile(filename, true)
	if err != nil {
		return nil, err
	}
	if kf.Scheme != k.Name() {
		return nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "%s holds a %s key, selected %s", filename, kf.Scheme, k.Name())
	}
	raw, err := decodeBytes(kf.SecretKey, kf.Encoding)
	if err != nil {
		return nil, errors.Wrap(err, "decoding secret key")
	}
	defer utils.Zeroize(raw)
	return k.ParseSecretKey(raw)
}

func (st *cliState) encapsulate(c *cli.Context) error {
	format, _ := outputFormat(c)
	k, err := st.newKEM(c)
	if err != nil {
		return err
	}
	pk, err := st.loadPublicKey(k, c.String("public-key"))
	if err != nil {
		return err
	}
	ct, ss, err := k.Encapsulate(pk)
	if err != nil {
		return err
	}
	defer ss.Zeroize()
	return writeJSON(c, encapsulationFile{
		Scheme:       k.Name(),
		Encoding:     format,
		Ciphertext:   encodeBytes(ct.Bytes(), format),
		SharedSecret: encodeBytes(ss.Bytes(), format),
	}, c.String("output"))
}

func (st *cliState) decapsulate(c *cli.Context) error {
	format, _ := outputFormat(c)
	k, err := st.newKEM(c)
	if err != nil {
		return err
	}
	sk, err := st.loadSecretKey(k, c.String("secret-key"))
	if err != nil {
		return err
	}
	defer sk.Zeroize()

	var ef encapsulationFile
	if err := readJSON(c.String("ciphertext"), &ef); err != nil {
		return err
	}
	raw, err := decodeBytes(ef.Ciphertext, ef.Encoding)
	if err != nil {
		return errors.Wrap(err, "decoding ciphertext")
	}
	ct, err := k.ParseCiphertext(raw)
	if err != nil {
		return err
	}
	ss, err := k.Decapsulate(ct, sk)
	if err != nil {
		return err
	}
	defer ss.Zeroize()
	return writeJSON(c, encapsulationFile{
		Scheme:       k.Name(),
		Encoding:     format,
		SharedSecret: encodeBytes(ss.Bytes(), format),
	}, c.String("output"))
}

func (st *cliState) derive(c *cli.Context) error {
	format, _ := outputFormat(c)
	var ef encapsulationFile
	if err := readJSON(c.String("input"), &ef); err != nil {
		return err
	}
	secret, err := decodeBytes(ef.SharedSecret, ef.Encoding)
	if err != nil {
		return errors.Wrap(err, "decoding shared secret")
	}
	defer utils.Zeroize(secret)

	opts := []kdf.Option{kdf.WithKeyLength(c.Int("length"))}
	if label := c.String("label"); label != "" {
		opts = append(opts, kdf.WithLabel(label))
	}
	if saltHex := c.String("salt"); saltHex != "" {
		salt, err := hex.DecodeString(saltHex)
		if err != nil {
			return errors.Wrap(err, "invalid --salt")
		}
		opts = append(opts, kdf.WithSalt(salt))
	}

	keys, err := kdf.DeriveKeys(secret, c.Int("count"), opts...)
	if err != nil {
		return err
	}
	out := derivedKeysFile{Encoding: format, Keys: make([]string, len(keys))}
	for i, key := range keys {
		out.Keys[i] = encodeBytes(key, format)
		key.Zeroize()
	}
	return writeJSON(c, out, c.String("output"))
}

func (st *cliState) seal(c *cli.Context) error {
	format, _ := outputFormat(c)
	k, err := st.newKEM(c)
	if err != nil {
		return err
	}
	pk, err := st.loadPublicKey(k, c.String("public-key"))
	if err != nil {
		return err
	}

	var msg []byte
	switch {
	case c.IsSet("input"):
		if msg, err = os.ReadFile(c.String("input")); err != nil {
			return err
		}
	case c.IsSet("message"):
		msg = []byte(c.String("message"))
	default:
		return errors.New("one of --message or --input is required")
	}

	sealed, err := k.Seal(pk, msg, []byte(c.String("aad")))
	if err != nil {
		return err
	}
	return writeJSON(c, sealedFile{
		Scheme:   k.Name(),
		Encoding: format,
		Sealed:   encodeBytes(sealed, format),
	}, c.String("output"))
}

func (st *cliState) open(c *cli.Context) error {
	k, err := st.newKEM(c)
	if err != nil {
		return err
	}
	sk, err := st.loadSecretKey(k, c.String("secret-key"))
	if err != nil {
		return err
	}
	defer sk.Zeroize()

	var sf sealedFile
	if err := readJSON(c.String("sealed"), &sf); err != nil {
		return err
	}
	raw, err := decodeBytes(sf.Sealed, sf.Encoding)
	if err != nil {
		return errors.Wrap(err, "decoding sealed message")
	}
	plaintext, err := k.Open(sk, raw, []byte(c.String("aad")))
	if err != nil {
		return err
	}
	if out := c.String("output"); out != "" {
		return writeOutput(c, plaintext, out)
	}
	_, err = c.App.Writer.Write(plaintext)
	return err
}

func (st *cliState) bench(c *cli.Context) error {
	iterations := c.Int("iterations")
	if iterations < 1 {
		iterations = 1
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if err := metrics.RegisterBuildInfo(reg, qhybrid.Version); err != nil {
		return err
	}

	if addr := c.String("metrics-addr"); addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrap(err, "metrics listener")
		}
		shutdownC := make(chan struct{})
		errC := make(chan error, 1)
		go func() { errC <- metrics.ServeMetrics(l, reg, shutdownC, st.log) }()
		defer func() {
			if linger := c.Duration("linger"); linger > 0 {
				st.log.Info().Dur("linger", linger).Msg("benchmark done, still serving metrics")
				time.Sleep(linger)
			}
			close(shutdownC)
			<-errC
		}()
	}

	k, err := st.newKEM(c, kem.WithObserver(collector))
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "qHybrid benchmark: %s, %d iterations\n", k.Name(), iterations)

	var (
		pk    *kem.PublicKey
		sk    *kem.SecretKey
		ct    *kem.Ciphertext
		total time.Duration
	)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if sk != nil {
			sk.Zeroize()
		}
		if pk, sk, err = k.KeyPair(); err != nil {
			return err
		}
		total += time.Since(start)
	}
	defer sk.Zeroize()
	fmt.Fprintf(w, "  KeyPair:     %v (avg)\n", total/time.Duration(iterations))

	var want *qhybrid.SharedSecret
	total = 0
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if ct, want, err = k.Encapsulate(pk); err != nil {
			return err
		}
		total += time.Since(start)
	}
	fmt.Fprintf(w, "  Encapsulate: %v (avg)\n", total/time.Duration(iterations))

	total = 0
	for i := 0; i < iterations; i++ {
		start := time.Now()
		got, err := k.Decapsulate(ct, sk)
		if err != nil {
			return err
		}
		total += time.Since(start)
		if !got.Equal(want) {
			return errors.New("benchmark round trip produced different secrets")
		}
	}
	fmt.Fprintf(w, "  Decapsulate: %v (avg)\n", total/time.Duration(iterations))

	msg := bytes.Repeat([]byte("qHybrid"), 64)
	total = 0
	for i := 0; i < iterations; i++ {
		start := time.Now()
		sealed, err := k.Seal(pk, msg, nil)
		if err != nil {
			return err
		}
		if _, err := k.Open(sk, sealed, nil); err != nil {
			return err
		}
		total += time.Since(start)
	}
	fmt.Fprintf(w, "  Seal+Open:   %v (avg)\n", total/time.Duration(iterations))
	fmt.Fprintf(w, "  Sizes: pk %d, sk %d, ct %d bytes\n", k.PublicKeySize(), k.SecretKeySize(), k.CiphertextSize())
	return nil
}
