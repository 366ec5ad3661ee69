package encryption

import (
	"context"
	"errors"

	"github.com/dev-tams/dbbackup/internal/command"
	"github.com/dev-tams/dbbackup/internal/process"
)

const (
	encryptDesc = "GPG"
	decryptDesc = "GPG decrypt"
)

var ErrNoRecipients = errors.New("encryption needs at least one recipient")

// GPG encrypts and decrypts backups with the gpg binary.
type GPG struct {
	Program string
	HomeDir string

	sup *process.Supervisor
}

func NewGPG(sup *process.Supervisor, program, homeDir string) *GPG {
	if program == "" {
		program = "gpg"
	}
	return &GPG{Program: program, HomeDir: homeDir, sup: sup}
}

func (g *GPG) baseArgs() []string {
	args := []string{"--batch", "--yes"}
	if g.HomeDir != "" {
		args = append(args, "--homedir", g.HomeDir)
	}
	return append(args, "--trust-model", "always")
}

func (g *GPG) encryptArgs(recipients []string, destination string) []string {
	args := append(g.baseArgs(), "-e")
	for _, r := range recipients {
		args = append(args, "-r", r)
	}
	return append(args, "--output", destination)
}

// Encrypt writes food, encrypted for recipients, to destination. gpg exits
// right away on bad recipients, which is reported as a
// *process.StartFailedError before any input is fed.
func (g *GPG) Encrypt(ctx context.Context, food process.Chunks, recipients []string, destination string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	p, err := g.sup.Start(ctx, process.Spec{
		Desc:         encryptDesc,
		Program:      g.Program,
		Args:         g.encryptArgs(recipients, destination),
		CaptureStdin: true,
	})
	if err != nil {
		return err
	}
	if err := g.sup.CheckStarted(p); err != nil {
		return err
	}
	return g.sup.FeedProcess(ctx, p, food)
}

func (g *GPG) decryptTemplate(passphrase string) command.Template {
	t := command.Template{Program: g.Program}
	for _, a := range g.baseArgs() {
		t.Args = append(t.Args, command.Arg{Value: a})
	}
	if passphrase != "" {
		t.Args = append(t.Args,
			command.Arg{Flag: "--pinentry-mode", Value: "loopback"},
			command.Arg{Flag: "--passphrase-fd", Value: "0"},
		)
		t.Secret = &command.SecretPolicy{Stdin: "{passphrase}\n"}
	}
	t.Args = append(t.Args, command.Arg{Flag: "-d", Value: "{source}"})
	return t
}

// Decrypt streams the plaintext of source. A passphrase, when given, is
// passed on stdin.
func (g *GPG) Decrypt(ctx context.Context, source, passphrase string) (*process.Output, error) {
	c, err := command.FillOut(g.decryptTemplate(passphrase), map[string]string{
		"source":     source,
		"passphrase": passphrase,
	})
	if err != nil {
		return nil, err
	}
	return g.sup.Collect(ctx, c.Spec(decryptDesc))
}
