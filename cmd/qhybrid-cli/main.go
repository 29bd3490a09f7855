// Command qhybrid-cli generates hybrid key pairs, encapsulates and
// decapsulates shared secrets, derives keys and seals messages.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/core"
	"github.com/BackendStack21/qhybrid-go/kem"
	"github.com/BackendStack21/qhybrid-go/schemes/mlkem"
	"github.com/BackendStack21/qhybrid-go/schemes/sntrup"
)

const appName = "qhybrid-cli"

// Component pairs selectable with --components.
const (
	componentsLatticeCode = "lattice-code"
	componentsMLKEMNTRU   = "mlkem-sntrup"
)

var (
	Version   = "DEV"
	BuildTime = "unknown"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// cliState is shared by every command of one App.
type cliState struct {
	log zerolog.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	st := &cliState{log: zerolog.Nop()}

	app := &cli.App{}
	app.Name = appName
	app.Usage = "Hybrid post-quantum key encapsulation"
	app.UsageText = appName + " [global options] command [command options]"
	app.Version = fmt.Sprintf("%s (library %s, built %s)", Version, qhybrid.Version, BuildTime)
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = globalFlags()
	app.Before = st.before
	app.Commands = st.commands()
	return app
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "level",
			Aliases: []string{"l"},
			Value:   "128",
			Usage:   "Security level: 128 or 256",
			EnvVars: []string{"QHYBRID_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "components",
			Value:   componentsLatticeCode,
			Usage:   "Component pair: lattice-code or mlkem-sntrup (the latter ignores --level)",
			EnvVars: []string{"QHYBRID_COMPONENTS"},
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   formatBase64,
			Usage:   "Binary encoding in output files: hex or base64",
			EnvVars: []string{"QHYBRID_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "loglevel",
			Value:   "warn",
			Usage:   "Log level: debug, info, warn, error, fatal",
			EnvVars: []string{"QHYBRID_LOGLEVEL"},
		},
	}
}

func (st *cliState) before(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("loglevel"))
	if err != nil {
		return errors.Wrap(err, "invalid --loglevel")
	}
	if _, err := outputFormat(c); err != nil {
		return err
	}
	st.log = zerolog.New(zerolog.ConsoleWriter{
		Out:        c.App.ErrWriter,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
	return nil
}

func (st *cliState) commands() []*cli.Command {
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the result to this file (0600) instead of stdout",
	}
	return []*cli.Command{
		{
			Name:   "keygen",
			Usage:  "Generate a hybrid key pair",
			Action: st.keygen,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{
					Name:  "public-output",
					Usage: "Also write a file holding only the public key",
				},
				&cli.StringFlag{
					Name:  "seed",
					Usage: "Derive the key pair from this hex seed (at least 32 bytes)",
				},
			},
		},
		{
			Name:   "encapsulate",
			Usage:  "Encapsulate a fresh shared secret to a public key",
			Action: st.encapsulate,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{Name: "public-key", Aliases: []string{"pk"}, Required: true, Usage: "Key file"},
			},
		},
		{
			Name:   "decapsulate",
			Usage:  "Recover the shared secret from a ciphertext",
			Action: st.decapsulate,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{Name: "secret-key", Aliases: []string{"sk"}, Required: true, Usage: "Key pair file"},
				&cli.StringFlag{Name: "ciphertext", Aliases: []string{"ct"}, Required: true, Usage: "Encapsulation file"},
			},
		},
		{
			Name:   "derive",
			Usage:  "Derive symmetric keys from a shared secret",
			Action: st.derive,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "File holding a shared_secret"},
				&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of keys"},
				&cli.IntFlag{Name: "length", Value: 32, Usage: "Length of each key in bytes"},
				&cli.StringFlag{Name: "label", Usage: "Context label"},
				&cli.StringFlag{Name: "salt", Usage: "Hex salt"},
			},
		},
		{
			Name:   "seal",
			Usage:  "Encrypt a message to a public key",
			Action: st.seal,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{Name: "public-key", Aliases: []string{"pk"}, Required: true, Usage: "Key file"},
				&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message text"},
				&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Read the message from this file"},
				&cli.StringFlag{Name: "aad", Usage: "Associated data"},
			},
		},
		{
			Name:   "open",
			Usage:  "Decrypt a sealed message",
			Action: st.open,
			Flags: []cli.Flag{
				outputFlag,
				&cli.StringFlag{Name: "secret-key", Aliases: []string{"sk"}, Required: true, Usage: "Key pair file"},
				&cli.StringFlag{Name: "sealed", Required: true, Usage: "Sealed message file"},
				&cli.StringFlag{Name: "aad", Usage: "Associated data"},
			},
		},
		{
			Name:   "bench",
			Usage:  "Measure key generation, encapsulation and decapsulation",
			Action: st.bench,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Value: 10, Usage: "Operations per measurement"},
				&cli.StringFlag{
					Name:    "metrics-addr",
					Usage:   "Serve Prometheus metrics on this address while benchmarking",
					EnvVars: []string{"QHYBRID_METRICS_ADDR"},
				},
				&cli.DurationFlag{Name: "linger", Usage: "Keep serving metrics this long after the run"},
			},
		},
		{
			Name:  "version",
			Usage: "Print the version",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "%s version %s (built %s)\n", appName, Version, BuildTime)
				fmt.Fprintf(c.App.Writer, "qhybrid library %s, %s\n", qhybrid.Version, runtime.Version())
				return nil
			},
		},
	}
}

// newKEM builds the KEM selected by the global flags.
func (st *cliState) newKEM(c *cli.Context, opts ...kem.Option) (*kem.KEM, error) {
	opts = append(opts, kem.WithLogger(st.log))
	switch c.String("components") {
	case componentsLatticeCode:
		level, err := core.ParseLevel(c.String("level"))
		if err != nil {
			return nil, err
		}
		return kem.New(level, opts...)
	case componentsMLKEMNTRU:
		return kem.NewWithSchemes(mlkem.New(), sntrup.New(), opts...)
	default:
		return nil, errors.Errorf("unknown --components %q", c.String("components"))
	}
}
