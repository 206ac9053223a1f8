package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/search"
)

// Catalog is the client surface the commands use
type Catalog interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) (domain.LogoutStatus, error)
	Username() (string, bool)
	Fetch(ctx context.Context) (domain.MediaCollection, error)
	Add(ctx context.Context, record domain.MediaRecord) (domain.MediaRecord, error)
	Update(ctx context.Context, records ...domain.MediaRecord) (domain.RecordPayload, error)
	Delete(ctx context.Context, record domain.MediaRecord) error
	Search(query string) []search.Result
	Find(name string) (domain.MediaRecord, bool)
}

var errUsage = errors.New("invalid arguments, see mediasync -h")

type command struct {
	client       Catalog
	in           io.Reader
	out          io.Writer
	readPassword func(prompt string, in io.Reader, out io.Writer) (string, error)
	watch        func() error
}

func (c *command) dispatch(ctx context.Context, args []string) error {
	name, rest := args[0], args[1:]
	switch name {
	case "register":
		return c.register(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "status":
		return c.status()
	case "list":
		return c.list(ctx, rest)
	case "add":
		return c.add(ctx, rest)
	case "rename":
		return c.rename(ctx, rest)
	case "delete":
		return c.remove(ctx, rest)
	case "watch":
		if c.watch == nil {
			return errUsage
		}
		return c.watch()
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) register(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	password, err := c.readPassword("Password: ", c.in, c.out)
	if err != nil {
		return err
	}
	if err := c.client.Register(ctx, args[0], password); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Registered %s\n", args[0])
	return nil
}

func (c *command) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	password, err := c.readPassword("Password: ", c.in, c.out)
	if err != nil {
		return err
	}
	if err := c.client.Login(ctx, args[0], password); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Logged in as %s\n", args[0])
	return nil
}

func (c *command) logout(ctx context.Context) error {
	status, err := c.client.Logout(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logout: %s\n", status)
	return nil
}

func (c *command) status() error {
	if name, ok := c.client.Username(); ok {
		fmt.Fprintf(c.out, "Logged in as %s\n", name)
		return nil
	}
	fmt.Fprintln(c.out, "Not logged in")
	return nil
}

func (c *command) list(ctx context.Context, args []string) error {
	if _, err := c.client.Fetch(ctx); err != nil {
		return err
	}
	results := c.client.Search(strings.Join(args, " "))
	for _, r := range results {
		c.printRecord(r.Record)
	}
	if len(results) == 0 {
		fmt.Fprintln(c.out, "No records")
	}
	return nil
}

func (c *command) add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	record := domain.MediaRecord{Name: args[0]}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	record.Fields = fields

	added, err := c.client.Add(ctx, record)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, "✓ Added ")
	c.printRecord(added)
	return nil
}

func (c *command) rename(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	record, err := c.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	record.Name = args[1]

	payload, err := c.client.Update(ctx, record)
	if err != nil {
		return err
	}
	for _, r := range payload.Records() {
		fmt.Fprint(c.out, "✓ Updated ")
		c.printRecord(r)
	}
	return nil
}

func (c *command) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	record, err := c.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.client.Delete(ctx, record); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Deleted %s\n", record.Name)
	return nil
}

// resolve loads the collection and picks the record closest to name
func (c *command) resolve(ctx context.Context, name string) (domain.MediaRecord, error) {
	if _, err := c.client.Fetch(ctx); err != nil {
		return domain.MediaRecord{}, err
	}
	record, ok := c.client.Find(name)
	if !ok {
		return domain.MediaRecord{}, fmt.Errorf("no record matching %q", name)
	}
	return record, nil
}

func (c *command) printRecord(r domain.MediaRecord) {
	if desc := r.Description(); desc != "" {
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", r.ID, r.Name, desc)
		return
	}
	fmt.Fprintf(c.out, "%s\t%s\n", r.ID, r.Name)
}

// parseFields turns key=value arguments into record fields. Integer values
// are stored as numbers.
func parseFields(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", arg)
		}
		if k == "id" || k == "name" {
			return nil, fmt.Errorf("field %q is reserved", k)
		}
		if n, err := strconv.Atoi(v); err == nil {
			fields[k] = n
		} else {
			fields[k] = v
		}
	}
	return fields, nil
}

// readPassword reads a password without echo when in is a terminal
func readPassword(prompt string, in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
