// Package console holds the terminal helpers used by the mqshim CLI.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Menu is printed before the mode key press.
const Menu = `
A) Send messages
B) Receive messages
`

// Out writes whole lines. On a terminal lines end in CRLF so output stays
// aligned while ReadKey holds the terminal in raw mode.
type Out struct {
	mu  sync.Mutex
	w   io.Writer
	eol string
}

func NewOut(w io.Writer) *Out {
	eol := "\n"
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		eol = "\r\n"
	}
	return &Out{w: w, eol: eol}
}

func (o *Out) Println(a ...any) {
	o.write(fmt.Sprint(a...))
}

func (o *Out) Printf(format string, a ...any) {
	o.write(fmt.Sprintf(format, a...))
}

func (o *Out) write(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprint(o.w, line, o.eol)
}

// Error prints err's cause chain in red.
func (o *Out) Error(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	red := color.New(color.FgRed)
	for _, line := range causeLines(err) {
		red.Fprint(o.w, line, o.eol)
	}
}

// ReadKey reads one key press from f. When f is a terminal it is switched
// to raw mode for the read so no Enter is needed; otherwise the first rune
// of the next input is returned. If ctx ends first ReadKey returns
// ctx.Err(). The terminal is restored before ReadKey returns either way.
func ReadKey(ctx context.Context, f *os.File) (rune, error) {
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return 0, fmt.Errorf("console: raw mode: %w", err)
		}
		defer term.Restore(fd, state)
	}
	return readKey(ctx, f)
}

type keyPress struct {
	key rune
	err error
}

// readKey reads on its own goroutine so a cancelled ctx does not wait for
// input. A read still pending after cancellation is left to finish.
func readKey(ctx context.Context, r io.Reader) (rune, error) {
	done := make(chan keyPress, 1)
	go func() {
		key, err := readRune(r)
		done <- keyPress{key: key, err: err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case p := <-done:
		return p.key, p.err
	}
}

func readRune(r io.Reader) (rune, error) {
	buf := make([]byte, utf8.UTFMax)
	n, err := r.Read(buf[:1])
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if buf[0] < utf8.RuneSelf {
		return rune(buf[0]), nil
	}
	for i := 1; i < utf8.UTFMax && !utf8.FullRune(buf[:i]); i++ {
		if _, err := io.ReadFull(r, buf[i:i+1]); err != nil {
			return utf8.RuneError, nil
		}
		n = i + 1
	}
	ch, _ := utf8.DecodeRune(buf[:n])
	return ch, nil
}

// ErrorChain flattens err and its causes, outermost first. Joined errors
// contribute each branch in order.
func ErrorChain(err error) []string {
	var lines []string
	var walk func(error, string)
	walk = func(e error, indent string) {
		for e != nil {
			lines = append(lines, indent+e.Error())
			switch u := e.(type) {
			case interface{ Unwrap() []error }:
				for _, inner := range u.Unwrap() {
					walk(inner, indent+"  ")
				}
				return
			default:
				e = errors.Unwrap(e)
				indent += "  "
			}
		}
	}
	walk(err, "")
	return lines
}

func causeLines(err error) []string {
	lines := ErrorChain(err)
	for i := 1; i < len(lines); i++ {
		msg := strings.TrimLeft(lines[i], " ")
		lines[i] = lines[i][:len(lines[i])-len(msg)] + "caused by: " + msg
	}
	return lines
}

// PrintError writes the full cause chain of err to w in red.
func PrintError(w io.Writer, err error) {
	(&Out{w: w, eol: "\n"}).Error(err)
}

const (
	ticksPerSecond = 10_000_000
	// 1970-01-01 in ticks since 0001-01-01
	ticksAtUnixEpoch = 621355968000000000
)

// Ticks returns t as a count of 100-nanosecond intervals since
// 0001-01-01 00:00:00 in t's location, the format of DateTime.Ticks.
func Ticks(t time.Time) int64 {
	_, offset := t.Zone()
	return t.UnixNano()/100 + int64(offset)*ticksPerSecond + ticksAtUnixEpoch
}
