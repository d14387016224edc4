/*
 * keos - Kernel simulator entry point
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/config"
	"github.com/kaldera/keos/internal/kernel"
	"github.com/kaldera/keos/internal/klog"
	"github.com/kaldera/keos/internal/ushell"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "keos.cfg", "Configuration file")
	optImage := getopt.StringLong("image", 'i', "", "Disk image path")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Enable debug logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	cfg := config.Default()
	if _, err := os.Stat(*optConfig); err == nil {
		cfg, err = config.Load(*optConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "keos: ", err)
			os.Exit(1)
		}
	}
	if *optImage != "" {
		cfg.DiskImage = *optImage
	}
	if *optLogFile != "" {
		cfg.LogFile = *optLogFile
	}
	if *optDebug {
		cfg.Debug = true
	}

	var file *os.File
	if cfg.LogFile != "" {
		var err error
		file, err = os.Create(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "keos: ", err)
			os.Exit(1)
		}
		defer file.Close()
	}
	Logger = slog.New(klog.NewHandler(file, nil, cfg.Debug))
	slog.SetDefault(Logger)
	Logger.Info("keos started")

	dev, err := blockdev.OpenFileDevice(cfg.DiskImage)
	if err != nil {
		Logger.Error("open disk image", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	k, err := kernel.Boot(dev, cfg.GMTOffset)
	if err != nil {
		Logger.Error("boot", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		k.Run()
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				k.PostTimerTick()
			}
		}
	})

	group.Go(func() error {
		sh := ushell.New(k, func(s string) { fmt.Print(s) })
		err := sh.Run()
		if err != nil && !errors.Is(err, ushell.ErrExit) {
			return err
		}
		stop()
		return nil
	})

	<-gctx.Done()
	Logger.Info("shutting down")
	k.Stop()

	if err := group.Wait(); err != nil {
		Logger.Error("shutdown", "error", err)
	}
	Logger.Info("stopped")
}
