/*
 * keos - Disk image builder
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

// Command mkimage creates and formats a blank disk image on the host,
// ready to be mounted by keos (spec §6 "disk image layout"). It is a
// host-side tool: it exercises internal/blockdev.FileDevice and
// internal/fat32.New directly, outside any simulated ring-0/ring-3
// boundary, the same way the teacher's own simulator ships standalone
// host tools alongside the main binary rather than folding every
// utility into one monolith.
package main

import (
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/fat32"
)

func main() {
	optPath := getopt.StringLong("out", 'o', "disk.img", "Output image path")
	optBlocks := getopt.Uint64Long("blocks", 'b', 2048, "Number of 512-byte blocks")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	blocks := uint32(*optBlocks)
	if err := create(*optPath, blocks); err != nil {
		fmt.Fprintln(os.Stderr, "mkimage: ", err)
		os.Exit(1)
	}
	fmt.Printf("mkimage: wrote %s (%d blocks)\n", *optPath, blocks)
}

func create(path string, blocks uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	size := int64(blocks) * blockdev.BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	dev, err := blockdev.OpenFileDevice(path)
	if err != nil {
		return err
	}
	defer dev.Close()

	if _, err := fat32.New(dev); err != nil {
		return err
	}
	return dev.Sync()
}
