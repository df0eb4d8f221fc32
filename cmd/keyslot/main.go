// Command keyslot encrypts and decrypts stdin with key material that persists
// across runs in a snapshot file.
//
//	keyslot --state app.state encrypt < secret.txt > secret.bin
//	keyslot --state app.state decrypt < secret.bin
//
// The first run generates the key material and writes the state file; later
// runs restore it before processing.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	keyslot "github.com/rbaliyan/config-keyslot"
	"github.com/urfave/cli/v2"
)

var StateFlag = &cli.StringFlag{
	Name:    "state",
	Value:   "keyslot.state",
	Usage:   "snapshot file holding the key material",
	EnvVars: []string{"KEYSLOT_STATE"},
}

var KeySizeFlag = &cli.IntFlag{
	Name:    "key-size",
	Value:   keyslot.DefaultKeySize,
	Usage:   "AES key size in bytes for newly generated key material (16, 24 or 32)",
	EnvVars: []string{"KEYSLOT_KEY_SIZE"},
}

var VerboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "log key material lifecycle events to stderr",
	EnvVars: []string{"KEYSLOT_VERBOSE"},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "keyslot",
		Usage: "Encrypt and decrypt with persistent key material",
		Flags: []cli.Flag{StateFlag, KeySizeFlag, VerboseFlag},
		Commands: []*cli.Command{
			{
				Name:  "encrypt",
				Usage: "encrypt stdin to stdout",
				Action: func(cCtx *cli.Context) error {
					return process(cCtx, keyslot.ModeEncrypt)
				},
			},
			{
				Name:  "decrypt",
				Usage: "decrypt stdin to stdout",
				Action: func(cCtx *cli.Context) error {
					return process(cCtx, keyslot.ModeDecrypt)
				},
			},
			{
				Name:  "fingerprint",
				Usage: "print the fingerprint of the key material, generating it if needed",
				Action: func(cCtx *cli.Context) error {
					store, err := openStore(cCtx)
					if err != nil {
						return err
					}
					m, _, err := store.CipherData(cCtx.Context, true)
					if err != nil {
						return err
					}
					if err := saveState(cCtx.String(StateFlag.Name), store); err != nil {
						return err
					}
					_, err = fmt.Fprintln(cCtx.App.Writer, m.Fingerprint())
					return err
				},
			},
		},
	}
}

func newLogger(cCtx *cli.Context) logr.Logger {
	if !cCtx.Bool(VerboseFlag.Name) {
		return logr.Discard()
	}
	stdr.SetVerbosity(1)
	return stdr.New(log.New(cCtx.App.ErrWriter, "", log.LstdFlags))
}

func openStore(cCtx *cli.Context) (*keyslot.Store, error) {
	store, err := keyslot.New(
		keyslot.WithKeySize(cCtx.Int(KeySizeFlag.Name)),
		keyslot.WithLogger(newLogger(cCtx)),
	)
	if err != nil {
		return nil, err
	}
	if err := loadState(cCtx.Context, cCtx.String(StateFlag.Name), store); err != nil {
		return nil, err
	}
	return store, nil
}

func process(cCtx *cli.Context, mode keyslot.Mode) error {
	store, err := openStore(cCtx)
	if err != nil {
		return err
	}

	c, err := store.GetCipher(cCtx.Context, mode, nil)
	if err != nil {
		return err
	}
	in, err := io.ReadAll(cCtx.App.Reader)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out, err := c.Process(in)
	if err != nil {
		return err
	}

	if err := saveState(cCtx.String(StateFlag.Name), store); err != nil {
		return err
	}
	_, err = cCtx.App.Writer.Write(out)
	return err
}
