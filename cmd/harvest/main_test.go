package main

import (
	"context"
	"testing"
)

func TestExecute_Version(t *testing.T) {
	err := Execute(context.Background(), "1.0.0", "abc123", "harvest", []string{"--version"})
	if err != nil {
		t.Errorf("Expected no error for --version, got: %v", err)
	}
}

func TestExecute_Help(t *testing.T) {
	err := Execute(context.Background(), "1.0.0", "abc123", "harvest", []string{"--help"})
	if err != nil {
		t.Errorf("Expected no error for --help, got: %v", err)
	}
}

func TestExecute_InvalidFlag(t *testing.T) {
	err := Execute(context.Background(), "1.0.0", "abc123", "harvest", []string{"--invalid-flag"})
	if err == nil {
		t.Error("Expected error for invalid flag")
	}
}

func TestExecute_UnknownSubcommand(t *testing.T) {
	err := Execute(context.Background(), "1.0.0", "abc123", "harvest", []string{"plow"})
	if err == nil {
		t.Error("Expected error for unknown subcommand")
	}
}

func TestRunMain_Success(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	// --help should succeed
	runMain([]string{"harvest", "--help"}, mockExit)

	if exitCode != -1 {
		t.Errorf("Expected no exit call for --help, got exit code: %d", exitCode)
	}
}

func TestRunMain_Failure(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	runMain([]string{"harvest", "--invalid"}, mockExit)

	if exitCode != 1 {
		t.Errorf("Expected exit code 1 for invalid flag, got: %d", exitCode)
	}
}
