/*
 * keos - Kernel configuration file parser
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

// Package config reads the kernel's boot configuration: the disk image
// path, RTC GMT offset, and debug logging flag. Hand-rolled
// line-oriented parsing, the same "no TOML/YAML library" approach the
// teacher takes for its own device config
// (config/configparser/configparser.go) — this kernel needs a far
// smaller grammar (key = value, '#' comments) so the parser is simpler,
// but follows the same texture: a bufio.Scanner line loop, no reflection
// or struct tags.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config is the kernel's boot-time configuration.
type Config struct {
	DiskImage string
	GMTOffset int
	Debug     bool
	LogFile   string
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{DiskImage: "disk.img", GMTOffset: 0, Debug: false}
}

// Load parses path, a line-oriented "key = value" file: '#' starts a
// comment to end of line, blank lines are ignored, keys are matched
// case-insensitively.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a configuration stream, starting from Default and
// overwriting fields named in r.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("config: line %d: expected key = value, got %q", lineNumber, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if err := cfg.set(key, value, lineNumber); err != nil {
			return cfg, err
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string, lineNumber int) error {
	switch key {
	case "disk", "diskimage", "disk_image":
		c.DiskImage = value
	case "gmtoffset", "gmt_offset":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: line %d: gmtoffset: %w", lineNumber, err)
		}
		c.GMTOffset = n
	case "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: line %d: debug: %w", lineNumber, err)
		}
		c.Debug = b
	case "logfile", "log_file":
		c.LogFile = value
	default:
		return fmt.Errorf("config: line %d: unknown key %q", lineNumber, key)
	}
	return nil
}
