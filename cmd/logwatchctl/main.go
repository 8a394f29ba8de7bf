// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Command logwatchctl is a thin TCP client for logwatchd's query
// protocol: it sends one command, prints every reply line, and exits.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
)

var (
	addr    = flag.String("addr", "127.0.0.1:3638", "address of logwatchd's query server")
	format  = flag.String("fmt", "{{.}}", "Go template applied to each reply line")
	timeout = flag.Duration("timeout", 5*time.Second, "dial and read timeout")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <verb> [arg]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "verbs: zones, globs, files, stats [zone], dump [zone], wipe [zone|*], quit\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	outTmpl, err := template.New("out").Funcs(sprig.TxtFuncMap()).Parse(*format + "\n")
	if err != nil {
		log.Fatalf("failed to compile output template, %v", err)
	}

	cmd := flag.Arg(0)
	if flag.NArg() > 1 {
		cmd = cmd + " " + strings.Join(flag.Args()[1:], " ")
	}

	if err := run(*addr, cmd, outTmpl, *timeout); err != nil {
		log.Fatal(err)
	}
}

func run(addr, cmd string, outTmpl *template.Template, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	// The query server keeps a connection open across commands, so a
	// one-shot client asks it to quit right after our real command:
	// the server closes the connection once it scans that line, which
	// turns our reply read into a plain read-until-EOF.
	if _, err := fmt.Fprintf(conn, "%s\nquit\n", cmd); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := outTmpl.ExecuteTemplate(os.Stdout, "out", line); err != nil {
			return fmt.Errorf("executing output template: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	return nil
}
