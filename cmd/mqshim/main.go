package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/miladsoleymani/mqshim/core"
	"github.com/miladsoleymani/mqshim/internal/app"
	"github.com/miladsoleymani/mqshim/internal/config"
	"github.com/miladsoleymani/mqshim/internal/console"
	"github.com/miladsoleymani/mqshim/internal/telemetry"
)

const lifecycleTimeout = 15 * time.Second

func main() {
	configDir := flag.String("config", "", "directory containing mqshim.yaml")
	flag.Parse()

	out := console.NewOut(os.Stdout)
	finish(out, run(*configDir, out))
}

// finish prints err's cause chain in red, if any, and the closing line.
func finish(out *console.Out, err error) {
	if err != nil {
		out.Error(err)
	}
	out.Println("End")
}

// keyReader blocks for one key press or until ctx ends.
type keyReader func(ctx context.Context) (rune, error)

func stdinKey(ctx context.Context) (rune, error) {
	return console.ReadKey(ctx, os.Stdin)
}

type deps struct {
	Service  *core.Service
	Settings *config.Settings
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

func run(configDir string, out *console.Out) (err error) {
	var d deps
	fxApp := fx.New(
		app.Module(configDir),
		fx.Populate(&d.Service, &d.Settings, &d.Metrics, &d.Logger),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
		defer cancel()
		if serr := fxApp.Stop(stopCtx); serr != nil && err == nil {
			err = serr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Print(console.Menu)
	key, err := stdinKey(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	out.Println()

	switch unicode.ToUpper(key) {
	case 'A':
		return send(ctx, d, out)
	case 'B':
		return receive(ctx, d, out, stdinKey)
	default:
		d.Logger.Debug("no mode selected", zap.String("key", string(key)))
		return nil
	}
}

// send publishes a timestamped message every publish interval until ctx
// is cancelled or a publish fails.
func send(ctx context.Context, d deps, out *console.Out) error {
	out.Println("Sending messages continuously ...")

	ticker := time.NewTicker(d.Settings.PublishInterval)
	defer ticker.Stop()

	for {
		body := fmt.Sprintf("A nice random message: %d", console.Ticks(time.Now()))
		err := d.Service.PublishText(ctx, d.Settings.Queue, body)
		d.Metrics.MessagePublished(d.Settings.Queue, err)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		out.Println("Message sent")

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// receive consumes the queue until a key is pressed, ctx is cancelled or
// the broker ends the consumer. The key reader has returned, and with it
// restored the terminal, by the time receive does.
func receive(ctx context.Context, d deps, out *console.Out, readKey keyReader) error {
	out.Println("Receiving messages, press any key to stop ...")

	d.Service.SetReceivedAction(func(c core.Context) error {
		out.Printf("Received message: %s", c.Text())
		return nil
	})
	if err := d.Service.BasicConsume(ctx, d.Settings.Queue, d.Settings.AutoAck); err != nil {
		return err
	}

	keyCtx, cancel := context.WithCancel(ctx)
	pressed := make(chan error, 1)
	released := make(chan struct{})
	go func() {
		defer close(released)
		_, err := readKey(keyCtx)
		pressed <- err
	}()
	defer func() {
		cancel()
		<-released
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-d.Service.Failed():
		return d.Service.Err()
	case err := <-pressed:
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			// stdin is not interactive; run until signalled
			select {
			case <-ctx.Done():
				return nil
			case <-d.Service.Failed():
				return d.Service.Err()
			}
		}
		return err
	}
}
