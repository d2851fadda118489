package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/recv"
	"github.com/GrantSparks/grafton-ndi/send"
	"github.com/GrantSparks/grafton-ndi/transport"
	"github.com/GrantSparks/grafton-ndi/transport/loopback"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	frameCount := pflag.Uint("frames", 120, "how many video frames to send before exiting")
	width := pflag.Int("width", 1920, "video width")
	height := pflag.Int("height", 1080, "video height")
	latency := pflag.Duration("send-latency", 5*time.Millisecond, "simulated per-frame transmission time")
	degraded := pflag.Bool("degraded", false, "pretend the engine has no completion callbacks")
	pflag.Parse()
	if len(pflag.Args()) != 0 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	engine := loopback.New(ctx, loopback.Config{
		SendLatency: *latency,
	})

	var sendTrans transport.Sender = engine
	if *degraded {
		sendTrans = engine.Degraded()
	}

	snd, err := send.New(ctx, sendTrans, send.Config{Name: "ndi-loopback"})
	if err != nil {
		l.Fatal(err)
	}

	rcv, err := recv.New(ctx, engine, recv.Config{Name: "ndi-loopback"})
	if err != nil {
		l.Fatal(err)
	}

	info := frame.VideoInfo{
		Width:       *width,
		Height:      *height,
		PixelFormat: frame.PixelFormatBGRA,
		FrameRateN:  30000,
		FrameRateD:  1001,
	}
	info.LineStride = info.PixelFormat.LineStride(info.Width)

	observability.Go(ctx, func(ctx context.Context) {
		buf := frame.NewBuffer(info.DataSize())
		for frameIdx := uint(0); frameIdx < *frameCount; frameIdx++ {
			if ctx.Err() != nil {
				return
			}
			// The buffer is pinned while the token is outstanding, so
			// the refill for the next frame has to wait for Wait.
			if err := buf.Fill(byte(frameIdx)); err != nil {
				l.Fatal(err)
			}
			token, err := snd.SendVideoAsync(ctx, buf, info)
			if err != nil {
				l.Fatal(err)
			}
			if err := token.Wait(ctx); err != nil {
				l.Fatal(err)
			}
		}
		if err := snd.Close(ctx); err != nil {
			l.Fatal(err)
		}
	})

	received := uint(0)
	bytesSeen := uint64(0)
	statsT := time.NewTicker(time.Second)
	defer statsT.Stop()
	for received < *frameCount {
		select {
		case <-ctx.Done():
			return
		case <-statsT.C:
			fmt.Printf(
				"received %s frames, %s; engine: %s",
				humanize.Comma(int64(received)),
				humanize.Bytes(bytesSeen),
				spew.Sdump(engine.GetStats()),
			)
			continue
		default:
		}

		view, err := rcv.CaptureVideo(ctx, 100*time.Millisecond)
		switch {
		case errors.Is(err, ndi.ErrTimeout{}):
			continue
		case err != nil:
			l.Fatal(err)
		}
		bytesSeen += uint64(len(view.Bytes()))
		received++
		view.Close(ctx)
	}
	cancelFn()

	if err := rcv.Close(ctx); err != nil {
		l.Fatal(err)
	}
	fmt.Printf(
		"done: %s frames, %s\n",
		humanize.Comma(int64(received)),
		humanize.Bytes(bytesSeen),
	)
}
