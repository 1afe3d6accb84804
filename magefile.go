//go:build mage
// +build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

const COMPOSE_FILE = "docker-compose.yaml"

func fmtPanic(format string, val ...any) {
	panic(fmt.Sprintf(format, val...))
}

func run(name string, args ...string) {
	cmd := exec.Command(name, args...)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	go io.Copy(os.Stdout, stdout)
	go io.Copy(os.Stderr, stderr)

	fmt.Printf("[Exec] %s\n", cmd.String())
	if err := cmd.Run(); err != nil {
		fmtPanic("Unable exec %s. Err: %s", cmd.String(), err)
	}
}

// Build compiles the broker binary.
func Build() {
	run("go", "build", "-o", "bin/room-broker", "./cmd/room-broker")
}

// Test runs the whole test suite.
func Test() {
	mg.Deps(Build)
	run("go", "test", "./...")
}

// Up starts the broker and the Janus media server via docker compose.
func Up() {
	run("docker", "compose", "-f", COMPOSE_FILE, "up", "-d", "--build")
}

// Down tears the compose stack down.
func Down() {
	run("docker", "compose", "-f", COMPOSE_FILE, "down")
}

// Janus starts only the media server, for local broker development.
func Janus() {
	run("docker", "compose", "-f", COMPOSE_FILE, "up", "-d", "janus")
}
