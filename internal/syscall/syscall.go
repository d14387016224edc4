/*
 * keos - Syscall multiplexer
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

// Package syscall demultiplexes the int 0x30 trap on eax into the
// twenty numbered services a user-space shell can reach (spec §6
// "Syscall ABI", grounded on original_source/src/interrupt.c's
// syscall()). A real trap passes arguments through ebx/ecx/edx; this
// simulator takes them as a struct, the same flattening the original's
// eax/ebx/ecx/edx switch would need if rewritten without raw pointers.
package syscall

import (
	"github.com/kaldera/keos/internal/console"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/process"
)

// Number identifies one syscall, matching the table in spec §6.
type Number uint32

const (
	ReadFile Number = iota
	ReadDirectory
	Write
	Delete
	GetKeyboardChar
	PutChar
	Puts
	ActivateKeyboard
	ResolveChild
	ResolveParent
	ListDirectory
	PrintTree
	SearchBM
	ClearScreen
	Kill
	Exec
	Ps
	ReadClock
	PrintPathTo
	SearchKMP
)

// Args is the flattened ebx/ecx/edx argument set; only the fields a
// given Number actually uses are populated by the caller.
type Args struct {
	Request    fat32.Request
	Buf        []byte
	Str        string
	Color      uint8
	Cluster    uint32
	Pattern    string
	PID        uint32
	Name       string
	Entrypoint uint32
}

// Result carries every shape a syscall might return; callers read only
// the field relevant to the Number they invoked.
type Result struct {
	RetCode   int
	Cluster   uint32
	Listing   []string
	Tree      string
	Path      string
	Found     bool
	PSOutput  string
	Hour      uint8
	Minute    uint8
	Second    uint8
	CreatedPID uint32
	Char      byte
}

// Dispatcher owns the kernel services a syscall may reach: the
// filesystem driver, the process manager, and the console collaborator
// (framebuffer + keyboard + RTC), matching spec §6's operation table.
type Dispatcher struct {
	FS      *fat32.Driver
	Procs   *process.Manager
	Console *console.Console
}

// Dispatch executes number with args and returns its Result. Vectors
// without a direct spec analogue simply leave the irrelevant Result
// fields zero.
func (d *Dispatcher) Dispatch(number Number, args Args) Result {
	switch number {
	case ReadFile:
		buf := args.Buf
		rc := d.FS.Read(fat32.Request{
			Name: args.Request.Name, Ext: args.Request.Ext,
			ParentCluster: args.Request.ParentCluster, Buf: buf, BufferSize: uint32(len(buf)),
		})
		return Result{RetCode: rc}

	case ReadDirectory:
		_, rc := d.FS.ReadDirectory(args.Request)
		return Result{RetCode: rc}

	case Write:
		rc := d.FS.Write(args.Request)
		return Result{RetCode: rc}

	case Delete:
		rc := d.FS.Delete(args.Request)
		return Result{RetCode: rc}

	case GetKeyboardChar:
		ch, ok := d.Console.Keyboard.ReadChar()
		if !ok {
			return Result{RetCode: fat32.Other}
		}
		return Result{RetCode: fat32.Ok, Char: ch}

	case PutChar:
		if len(args.Str) == 0 {
			return Result{RetCode: fat32.Other}
		}
		d.Console.Framebuffer.PutChar(args.Str[0], args.Color)
		return Result{RetCode: fat32.Ok}

	case Puts:
		d.Console.Framebuffer.Puts(args.Str, args.Color)
		return Result{RetCode: fat32.Ok}

	case ActivateKeyboard:
		d.Console.Keyboard.Activate()
		return Result{RetCode: fat32.Ok}

	case ResolveChild:
		c := d.FS.ResolveChild(args.Request)
		return Result{Cluster: c, RetCode: fat32.Ok}

	case ResolveParent:
		c, err := d.FS.ResolveParent(args.Cluster)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Cluster: c, RetCode: fat32.Ok}

	case ListDirectory:
		listing, err := d.FS.ListDirectory(args.Cluster)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Listing: listing, RetCode: fat32.Ok}

	case PrintTree:
		tree, err := d.FS.PrintTree(args.Cluster)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Tree: tree, RetCode: fat32.Ok}

	case SearchBM:
		matches, err := d.FS.SearchText(args.Cluster, args.Pattern, fat32.SearchBM)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Listing: matches, RetCode: fat32.Ok}

	case SearchKMP:
		matches, err := d.FS.SearchText(args.Cluster, args.Pattern, fat32.SearchKMP)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Listing: matches, RetCode: fat32.Ok}

	case ClearScreen:
		d.Console.Framebuffer.Clear()
		return Result{RetCode: fat32.Ok}

	case Kill:
		ok := d.Procs.Destroy(args.PID)
		if !ok {
			return Result{RetCode: fat32.Other}
		}
		return Result{RetCode: fat32.Ok}

	case Exec:
		pid, rc := d.Procs.Create(args.Request, args.Name, args.Entrypoint, uint32(len(args.Buf)))
		return Result{CreatedPID: pid, RetCode: rc}

	case Ps:
		return Result{PSOutput: d.Procs.Ps(), RetCode: fat32.Ok}

	case ReadClock:
		h, m, s := d.Console.RTC.Read()
		return Result{Hour: h, Minute: m, Second: s, RetCode: fat32.Ok}

	case PrintPathTo:
		path, found, err := d.FS.PrintPathTo(args.Cluster, args.Name)
		if err != nil {
			return Result{RetCode: fat32.Other}
		}
		return Result{Path: path, Found: found, RetCode: fat32.Ok}

	default:
		return Result{RetCode: fat32.Other}
	}
}
