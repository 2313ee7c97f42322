package auth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/term"
)

// Acquirer obtains a fresh session token, typically through a browser
// login.
type Acquirer interface {
	Acquire(ctx context.Context) (string, error)
}

// CommandAcquirer runs an external login helper and reads cookies from its
// stdout. See SelectSessionCookie for the accepted output.
type CommandAcquirer struct {
	Command string
	Timeout time.Duration
	// Stderr receives the helper's stderr. Nil discards it.
	Stderr io.Writer
}

func (c *CommandAcquirer) Acquire(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.Command) == "" {
		return "", errors.New("no acquire command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", c.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", c.Command)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("acquire command did not finish: %w", ctx.Err())
		}
		return "", fmt.Errorf("acquire command failed: %w", err)
	}
	return SelectSessionCookie(stdout.String())
}

// PromptAcquirer asks the user to paste a cookie. Input is not echoed when
// In is a terminal.
type PromptAcquirer struct {
	In  *os.File
	Out io.Writer
}

func (p *PromptAcquirer) Acquire(ctx context.Context) (string, error) {
	in, out := p.In, p.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}

	fmt.Fprintln(out, QuickGuide)
	fmt.Fprint(out, "Paste the __Secure-civitai-token cookie (or the whole Cookie header): ")

	var raw string
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		raw = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		raw = line
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return SelectSessionCookie(raw)
}

// Cookie is a name/value pair read from acquirer output.
type Cookie struct {
	Name  string
	Value string
}

// SelectSessionCookie extracts the session token from raw acquirer output.
// It accepts a JSON array of {"name","value"} objects, name=value pairs
// separated by newlines or semicolons, or a bare token. Among cookies whose
// name mentions auth, session or civitai the longest value wins.
func SelectSessionCookie(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("no cookie data")
	}

	cookies, bare := parseCookies(raw)
	if bare != "" {
		return bare, nil
	}

	var candidates []Cookie
	for _, c := range cookies {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, "auth") || strings.Contains(name, "session") || strings.Contains(name, "civitai") {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		names := make([]string, 0, len(cookies))
		for _, c := range cookies {
			names = append(names, c.Name)
		}
		return "", fmt.Errorf("no auth or session cookie among %d cookies (%s)", len(cookies), strings.Join(names, ", "))
	}

	// stable so the first of equally long values wins
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Value) > len(candidates[j].Value)
	})
	return candidates[0].Value, nil
}

func parseCookies(raw string) ([]Cookie, string) {
	if strings.HasPrefix(raw, "[") && gjson.Valid(raw) {
		var cookies []Cookie
		gjson.Parse(raw).ForEach(func(_, v gjson.Result) bool {
			if name := v.Get("name"); name.Exists() {
				cookies = append(cookies, Cookie{Name: name.String(), Value: v.Get("value").String()})
			}
			return true
		})
		return cookies, ""
	}

	raw = strings.TrimPrefix(raw, "Cookie:")
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';'
	})

	var cookies []Cookie
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:  strings.TrimSpace(name),
			Value: strings.Trim(strings.TrimSpace(value), `"`),
		})
	}
	if len(cookies) == 0 && len(fields) == 1 {
		return nil, strings.Trim(strings.TrimSpace(fields[0]), `"`)
	}
	return cookies, ""
}
