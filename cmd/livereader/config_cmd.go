// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/livereader/internal/config"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return exitOK
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return exitUsage
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  livereader config validate [--file|-f config.yaml] [--env-file .env]")
	fmt.Fprintln(w, "  livereader config dump [--file|-f config.yaml] [--env-file .env] [--format=yaml|json] [--output file]")
}

func configFlags(name string, stderr io.Writer) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before the environment is read")
	return fs, &file, envFile
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs, file, envFile := configFlags("livereader config validate", stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	cfg, err := config.NewLoader(*file, *envFile).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration invalid: %v\n", err)
		return exitFailed
	}
	fmt.Fprint(stdout, cfg.String())
	fmt.Fprintln(stdout, "Configuration valid")
	return exitOK
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs, file, envFile := configFlags("livereader config dump", stderr)
	format := fs.String("format", "yaml", "output format: yaml or json")
	output := fs.String("output", "", "write to this file atomically instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *format != "yaml" && *format != "json" {
		fmt.Fprintf(stderr, "Unknown format: %s\n", *format)
		return exitUsage
	}
	cfg, err := config.NewLoader(*file, *envFile).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration invalid: %v\n", err)
		return exitFailed
	}
	cfg.Stream.Key = config.MaskSecret(cfg.Stream.Key)

	var buf bytes.Buffer
	if err := encodeConfig(&buf, cfg, *format); err != nil {
		fmt.Fprintf(stderr, "Failed to encode configuration: %v\n", err)
		return exitFailed
	}
	if *output == "" {
		_, _ = stdout.Write(buf.Bytes())
		return exitOK
	}
	if err := writeConfigFile(*output, buf.Bytes()); err != nil {
		fmt.Fprintf(stderr, "Failed to write configuration: %v\n", err)
		return exitFailed
	}
	fmt.Fprintf(stdout, "Configuration written to %s\n", *output)
	return exitOK
}

func encodeConfig(w io.Writer, cfg config.AppConfig, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
