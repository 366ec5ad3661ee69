package command

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dev-tams/dbbackup/internal/process"
)

// PasswordFileField is bound to the path of the secret file, when the
// template asks for one.
const PasswordFileField = "PASSWORD_FILE"

// Arg is one entry of a template's argument list. An empty Flag makes
// Value a bare positional argument; a Value that formats to "" drops the
// whole entry, flag included.
type Arg struct {
	Flag  string
	Value string
}

// SecretPolicy says how a secret reaches the program. Each part is
// optional and they can be combined.
type SecretPolicy struct {
	// Env maps variable names to templated values.
	Env map[string]string
	// File is templated content written to a private temp file whose
	// path is bound to {PASSWORD_FILE}.
	File string
	// Stdin is templated content written to the program's stdin.
	Stdin string
}

// Template is a program plus its argument list, before any field values
// are known.
type Template struct {
	Program string
	Args    []Arg
	Secret  *SecretPolicy
}

// Command is a filled out template. It may own a temp file, so Release
// must be called once the program is done.
type Command struct {
	Program string
	Args    []string
	Env     []string
	Stdin   []byte

	mu    sync.Mutex
	files []string
}

// FillOut formats t with fields. Every placeholder is checked before the
// secret file is created, so a bad template never leaves a file behind.
func FillOut(t Template, fields map[string]string) (*Command, error) {
	if err := validate(t, fields); err != nil {
		return nil, err
	}

	bound := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		bound[k] = v
	}

	c := &Command{Program: t.Program}
	sec := t.Secret
	if sec == nil {
		sec = &SecretPolicy{}
	}

	if sec.File != "" {
		content, err := Format(sec.File, bound)
		if err != nil {
			return nil, err
		}
		path, err := writeSecretFile(content)
		if err != nil {
			return nil, err
		}
		c.files = append(c.files, path)
		bound[PasswordFileField] = path
	}

	fail := func(err error) (*Command, error) {
		if rerr := c.Release(); rerr != nil {
			err = multierror.Append(err, rerr)
		}
		return nil, err
	}

	args, err := formatArgs(t.Args, bound)
	if err != nil {
		return fail(err)
	}
	c.Args = args

	env, err := formatEnv(sec.Env, bound)
	if err != nil {
		return fail(err)
	}
	c.Env = env

	if sec.Stdin != "" {
		in, err := Format(sec.Stdin, bound)
		if err != nil {
			return fail(err)
		}
		c.Stdin = []byte(in)
	}
	return c, nil
}

// With fills out t, calls fn and releases the command on every way out of
// fn, panics included.
func With(t Template, fields map[string]string, fn func(*Command) error) (err error) {
	c, err := FillOut(t, fields)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := c.Release(); rerr != nil {
			err = multierror.Append(err, rerr).ErrorOrNil()
		}
	}()
	return fn(c)
}

// validate formats every templated string once, with the secret file
// path bound to a placeholder value.
func validate(t Template, fields map[string]string) error {
	probe := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		probe[k] = v
	}
	if t.Secret != nil && t.Secret.File != "" {
		probe[PasswordFileField] = "-"
	}

	if _, err := formatArgs(t.Args, probe); err != nil {
		return err
	}
	if t.Secret == nil {
		return nil
	}
	if _, err := Format(t.Secret.File, probe); err != nil {
		return err
	}
	if _, err := formatEnv(t.Secret.Env, probe); err != nil {
		return err
	}
	_, err := Format(t.Secret.Stdin, probe)
	return err
}

func formatArgs(args []Arg, fields map[string]string) ([]string, error) {
	out := make([]string, 0, len(args)*2)
	for _, a := range args {
		v, err := Format(a.Value, fields)
		if err != nil {
			return nil, err
		}
		if v == "" {
			continue
		}
		if a.Flag != "" {
			out = append(out, a.Flag)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatEnv(env map[string]string, fields map[string]string) ([]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := Format(env[k], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}

func writeSecretFile(content string) (string, error) {
	f, err := os.CreateTemp("", "dbbackup-secret-*")
	if err != nil {
		return "", fmt.Errorf("create secret file: %w", err)
	}
	path := f.Name()

	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("chmod secret file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write secret file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close secret file: %w", err)
	}
	return path, nil
}

// ArgString is the argument list joined with spaces, for display.
func (c *Command) ArgString() string {
	return strings.Join(c.Args, " ")
}

// Files returns the temp files owned by c.
func (c *Command) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// Release removes the temp files owned by c. It is safe to call more than
// once.
func (c *Command) Release() error {
	c.mu.Lock()
	files := c.files
	c.files = nil
	c.mu.Unlock()

	var result *multierror.Error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("remove secret file: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Spec turns c into a supervisor spec. Release is run as the spec's
// cleanup, so the temp file lives exactly as long as the process.
func (c *Command) Spec(desc string) process.Spec {
	return process.Spec{
		Desc:    desc,
		Program: c.Program,
		Args:    c.Args,
		Env:     c.Env,
		Stdin:   c.Stdin,
		Cleanup: func() { _ = c.Release() },
	}
}
