// Copyright (c) 2024 The Ember Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command falconc drives internal/host's §6.1 pipeline over a single
// tuple-encoded IR source file: asm, optionally scalarize, then emit C,
// NASM x64, or a round-tripped IR dump.
package main

import (
	"flag"
	"fmt"
	"os"

	"ember/internal/host"
	"ember/internal/x64"
)

func main() {
	target := flag.String("target", "native", "x64 target: native, linux, or windows (the emitted assembly is the same for each)")
	emit := flag.String("emit", "c", "what to emit: c, x64, or ir")
	scalarize := flag.Bool("scalarize", true, "run the scalarization pass before emission")
	debug := flag.Bool("debug", false, "print IR and assembly dumps as the pipeline runs")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: falconc [flags] source.ir")
		flag.PrintDefaults()
		os.Exit(1)
	}
	source := flag.Arg(0)

	f, err := os.Open(source)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	sess := host.NewSession()
	sess.DebugPrintIR = *debug
	sess.DebugPrintAsm = *debug

	ctx := sess.Context()
	if _, err := sess.Asm(ctx, f); err != nil {
		fatal(err)
	}

	if *scalarize {
		if err := sess.Scalarize(ctx); err != nil {
			fatal(err)
		}
	}

	switch *emit {
	case "c":
		out, err := sess.ToC(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(out)
	case "x64":
		t, ok := x64.LookupTarget(*target)
		if !ok {
			fatal(fmt.Errorf("unknown target %q", *target))
		}
		out, err := sess.ToX64(ctx, t)
		if err != nil {
			fatal(err)
		}
		fmt.Print(out)
	case "ir":
		modules, err := sess.ToIR(ctx)
		if err != nil {
			fatal(err)
		}
		for _, m := range modules {
			fmt.Println(m)
		}
	default:
		fatal(fmt.Errorf("unknown -emit value %q (want c, x64, or ir)", *emit))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "falconc:", err)
	os.Exit(1)
}
