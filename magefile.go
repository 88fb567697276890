//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles both command line tools into ./bin
func Build() error {
	mg.Deps(BuildMiniPet)
	mg.Deps(BuildCapture)
	fmt.Println("Compilation finished")
	return nil
}

func goCommand(args ...string) *exec.Cmd {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// BuildMiniPet builds the coincidence acquisition tool. It links libhdf5.
func BuildMiniPet() error {
	fmt.Println("Building minipet executable...")
	return goCommand("build", "-o", "./bin/minipet", "./minipet").Run()
}

// BuildCapture builds the waveform capture tool.
func BuildCapture() error {
	fmt.Println("Building capture executable...")
	return goCommand("build", "-o", "./bin/capture", "./capture").Run()
}

// Test runs the signal processing tests, which need no HDF5 library.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "./pkg/").Run()
}

// TestAll also runs the storage tests.
func TestAll() error {
	mg.Deps(Test)
	return goCommand("test", "./...").Run()
}
