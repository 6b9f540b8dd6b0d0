//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the tests of the packages touched by worker goroutines with the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./engine/containers/...", "./engine/core/...", "./engine/systems/...", "./engine/assets/..."), withStream())
	return err
}
