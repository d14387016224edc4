/*
 * keos - User-space shell
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

// Package ushell is the user-space shell: out of core scope except as a
// syscall consumer (spec §2 item 11), so it speaks only through its
// Dispatcher interface (syscall numbers and arguments), never touching
// the filesystem, process table, or console directly. Command dispatch is a prefix-matched
// table, the same shape as the teacher's command/parser/parser.go.
package ushell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/peterh/liner"

	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/syscall"
)

type command struct {
	name    string
	minLen  int
	process func(sh *Shell, args []string) error
}

var commandTable = []command{
	{name: "ls", minLen: 2, process: cmdLS},
	{name: "cd", minLen: 2, process: cmdCD},
	{name: "mkdir", minLen: 2, process: cmdMkdir},
	{name: "touch", minLen: 2, process: cmdTouch},
	{name: "cat", minLen: 3, process: cmdCat},
	{name: "rm", minLen: 2, process: cmdRM},
	{name: "tree", minLen: 2, process: cmdTree},
	{name: "find", minLen: 2, process: cmdFind},
	{name: "grep", minLen: 2, process: cmdGrep},
	{name: "ps", minLen: 2, process: cmdPs},
	{name: "kill", minLen: 2, process: cmdKill},
	{name: "clear", minLen: 2, process: cmdClear},
	{name: "time", minLen: 2, process: cmdTime},
	{name: "exec", minLen: 3, process: cmdExec},
	{name: "exit", minLen: 3, process: cmdExit},
}

// help is registered here rather than in the literal above: cmdHelp
// walks commandTable, which would otherwise be an initialization cycle.
func init() {
	commandTable = append(commandTable, command{name: "help", minLen: 2, process: cmdHelp})
}

// ErrExit is returned by cmdExit to signal Run to stop reading commands.
var ErrExit = errors.New("ushell: exit requested")

// Dispatcher is the syscall surface the shell traps into. The in-kernel
// syscall multiplexer satisfies it directly; the kernel's serialized
// trap path satisfies it too, which is what a running system wires in.
type Dispatcher interface {
	Dispatch(number syscall.Number, args syscall.Args) syscall.Result
}

// Shell is the interactive command loop, holding only a syscall
// dispatcher and its current working directory cluster.
type Shell struct {
	dispatch Dispatcher
	cwd      uint32
	line     *liner.State
	out      func(string)
}

// New builds a Shell rooted at fat32.RootClusterNumber, reading lines
// with liner and writing output through out (cmd/keos passes a function
// that prints to standard output).
func New(dispatch Dispatcher, out func(string)) *Shell {
	return &Shell{
		dispatch: dispatch,
		cwd:      fat32.RootClusterNumber,
		line:     liner.NewLiner(),
		out:      out,
	}
}

// Close releases the liner terminal state.
func (sh *Shell) Close() error {
	return sh.line.Close()
}

// Run reads and executes commands until the user exits or input ends.
func (sh *Shell) Run() error {
	defer sh.Close()
	for {
		text, err := sh.line.Prompt("keos> ")
		if err != nil {
			return err
		}
		sh.line.AppendHistory(text)
		if err := sh.Execute(text); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			sh.out(fmt.Sprintf("error: %v\n", err))
		}
	}
}

// Execute runs one command line against the prefix-matched table.
func (sh *Shell) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	var match *command
	for i := range commandTable {
		c := &commandTable[i]
		if len(name) < c.minLen {
			continue
		}
		if strings.HasPrefix(c.name, name) {
			if match != nil {
				return fmt.Errorf("ambiguous command: %s", name)
			}
			match = c
		}
	}
	if match == nil {
		return fmt.Errorf("unknown command: %s", name)
	}
	return match.process(sh, args)
}

func name8(s string) [8]byte {
	var b [8]byte
	copy(b[:], s)
	return b
}

func ext3(s string) [3]byte {
	var b [3]byte
	copy(b[:], s)
	return b
}

func splitNameExt(arg string) ([8]byte, [3]byte) {
	base, ext, _ := strings.Cut(arg, ".")
	return name8(base), ext3(ext)
}

func cmdLS(sh *Shell, args []string) error {
	res := sh.dispatch.Dispatch(syscall.ListDirectory, syscall.Args{Cluster: sh.cwd})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("ls: %d", res.RetCode)
	}
	sh.out(strings.Join(res.Listing, "  ") + "\n")
	return nil
}

func cmdCD(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("cd: usage: cd <dir>")
	}
	if args[0] == ".." {
		res := sh.dispatch.Dispatch(syscall.ResolveParent, syscall.Args{Cluster: sh.cwd})
		if res.RetCode != fat32.Ok {
			return fmt.Errorf("cd: %d", res.RetCode)
		}
		sh.cwd = res.Cluster
		return nil
	}
	name, ext := splitNameExt(args[0])
	req := fat32.Request{Name: name, Ext: ext, ParentCluster: sh.cwd}
	if ext == ([3]byte{}) {
		req.Ext = ext3("dir")
	}
	res := sh.dispatch.Dispatch(syscall.ResolveChild, syscall.Args{Request: req})
	if res.Cluster == 0 {
		return fmt.Errorf("cd: %s: not found", args[0])
	}
	sh.cwd = res.Cluster
	return nil
}

func cmdMkdir(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("mkdir: usage: mkdir <name>")
	}
	req := fat32.Request{Name: name8(args[0]), Ext: ext3("dir"), ParentCluster: sh.cwd}
	res := sh.dispatch.Dispatch(syscall.Write, syscall.Args{Request: req})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("mkdir: %d", res.RetCode)
	}
	return nil
}

// cmdTouch writes a file whose content is the remaining arguments joined
// by spaces; with no content it still creates a one-byte file, since a
// zero-size write means "create directory" to the driver.
func cmdTouch(sh *Shell, args []string) error {
	if len(args) < 1 {
		return errors.New("touch: usage: touch <file> [content...]")
	}
	content := strings.Join(args[1:], " ")
	if content == "" {
		content = "\n"
	}
	name, ext := splitNameExt(args[0])
	req := fat32.Request{
		Name: name, Ext: ext,
		ParentCluster: sh.cwd,
		Buf:           []byte(content),
		BufferSize:    uint32(len(content)),
	}
	res := sh.dispatch.Dispatch(syscall.Write, syscall.Args{Request: req})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("touch: %d", res.RetCode)
	}
	return nil
}

func cmdCat(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("cat: usage: cat <file>")
	}
	name, ext := splitNameExt(args[0])
	buf := make([]byte, 64*1024)
	res := sh.dispatch.Dispatch(syscall.ReadFile, syscall.Args{
		Request: fat32.Request{Name: name, Ext: ext, ParentCluster: sh.cwd},
		Buf:     buf,
	})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("cat: %d", res.RetCode)
	}
	sh.out(strings.TrimRight(string(buf), "\x00") + "\n")
	return nil
}

func cmdRM(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("rm: usage: rm <name>")
	}
	name, ext := splitNameExt(args[0])
	res := sh.dispatch.Dispatch(syscall.Delete, syscall.Args{Request: fat32.Request{Name: name, Ext: ext, ParentCluster: sh.cwd}})
	if res.RetCode == fat32.DeleteNotFound && ext == ([3]byte{}) {
		// A bare name may be a directory, which mkdir stores with ext "dir".
		res = sh.dispatch.Dispatch(syscall.Delete, syscall.Args{Request: fat32.Request{Name: name, Ext: ext3("dir"), ParentCluster: sh.cwd}})
	}
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("rm: %d", res.RetCode)
	}
	return nil
}

func cmdTree(sh *Shell, args []string) error {
	res := sh.dispatch.Dispatch(syscall.PrintTree, syscall.Args{Cluster: sh.cwd})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("tree: %d", res.RetCode)
	}
	sh.out(res.Tree)
	return nil
}

func cmdFind(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("find: usage: find <name>")
	}
	res := sh.dispatch.Dispatch(syscall.PrintPathTo, syscall.Args{Cluster: sh.cwd, Name: args[0]})
	if res.RetCode != fat32.Ok || !res.Found {
		return fmt.Errorf("find: %s: not found", args[0])
	}
	sh.out(res.Path)
	return nil
}

// cmdGrep searches every txt file under the working directory for a
// pattern: KMP by default, Boyer-Moore when "bm" is given as the second
// argument (syscalls 19 and 12).
func cmdGrep(sh *Shell, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("grep: usage: grep <pattern> [bm]")
	}
	number := syscall.SearchKMP
	if len(args) == 2 {
		if args[1] != "bm" {
			return fmt.Errorf("grep: unknown algorithm %q", args[1])
		}
		number = syscall.SearchBM
	}
	res := sh.dispatch.Dispatch(number, syscall.Args{Cluster: sh.cwd, Pattern: args[0]})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("grep: %d", res.RetCode)
	}
	for _, path := range res.Listing {
		sh.out(path + "\n")
	}
	return nil
}

func cmdExec(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("exec: usage: exec <file>")
	}
	base, extStr, _ := strings.Cut(args[0], ".")
	if extStr == "" {
		extStr = "bin"
	}
	req := fat32.Request{Name: name8(base), Ext: ext3(extStr), ParentCluster: sh.cwd}
	res := sh.dispatch.Dispatch(syscall.Exec, syscall.Args{
		Request: req,
		Name:    base,
		Buf:     make([]byte, 64*1024),
	})
	if res.RetCode != 0 {
		return fmt.Errorf("exec: %s: %d", args[0], res.RetCode)
	}
	sh.out(fmt.Sprintf("started %s (PID: %d)\n", base, res.CreatedPID))
	return nil
}

func cmdPs(sh *Shell, args []string) error {
	res := sh.dispatch.Dispatch(syscall.Ps, syscall.Args{})
	sh.out(res.PSOutput)
	return nil
}

func cmdKill(sh *Shell, args []string) error {
	if len(args) != 1 {
		return errors.New("kill: usage: kill <pid>")
	}
	var pid uint32
	if _, err := fmt.Sscanf(args[0], "%d", &pid); err != nil {
		return fmt.Errorf("kill: bad pid %q", args[0])
	}
	res := sh.dispatch.Dispatch(syscall.Kill, syscall.Args{PID: pid})
	if res.RetCode != fat32.Ok {
		return fmt.Errorf("kill: %d", res.RetCode)
	}
	return nil
}

func cmdClear(sh *Shell, args []string) error {
	sh.dispatch.Dispatch(syscall.ClearScreen, syscall.Args{})
	return nil
}

func cmdTime(sh *Shell, args []string) error {
	res := sh.dispatch.Dispatch(syscall.ReadClock, syscall.Args{})
	sh.out(fmt.Sprintf("%02d:%02d:%02d\n", res.Hour, res.Minute, res.Second))
	return nil
}

func cmdExit(sh *Shell, args []string) error {
	return ErrExit
}

func cmdHelp(sh *Shell, args []string) error {
	for _, c := range commandTable {
		sh.out(c.name + "\n")
	}
	return nil
}
