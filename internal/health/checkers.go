// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ManuGH/livereader/internal/fifo"
	"github.com/ManuGH/livereader/internal/procgraph"
)

// StageLister is the part of procgraph.Graph the graph checker reads.
type StageLister interface {
	Alive() []procgraph.StageStatus
}

// GraphChecker is unhealthy as soon as any encoder stage has exited.
type GraphChecker struct {
	name  string
	graph StageLister
}

// NewGraphChecker creates a checker over the stages of g.
func NewGraphChecker(name string, g StageLister) *GraphChecker {
	return &GraphChecker{name: name, graph: g}
}

func (c *GraphChecker) Name() string { return c.name }

func (c *GraphChecker) Check(_ context.Context) CheckResult {
	stages := c.graph.Alive()
	if len(stages) == 0 {
		return CheckResult{Status: StatusUnhealthy, Error: "no stages"}
	}
	var dead []string
	for _, s := range stages {
		if !s.Running {
			msg := s.Name
			if s.Error != "" {
				msg += ": " + s.Error
			}
			dead = append(dead, msg)
		}
	}
	if len(dead) > 0 {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   strings.Join(dead, "; "),
			Message: fmt.Sprintf("%d of %d stages exited", len(dead), len(stages)),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d stages running", len(stages)),
	}
}

// FIFOChecker verifies that a named pipe is still present at its path.
type FIFOChecker struct {
	name string
	path string
}

// NewFIFOChecker creates a checker for the FIFO at path.
func NewFIFOChecker(name, path string) *FIFOChecker {
	return &FIFOChecker{name: name, path: path}
}

func (c *FIFOChecker) Name() string { return c.name }

func (c *FIFOChecker) Check(_ context.Context) CheckResult {
	ok, err := fifo.IsFIFO(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "fifo not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !ok {
		return CheckResult{Status: StatusUnhealthy, Error: "not a named pipe", Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

// FuncChecker adapts a function to a Checker.
type FuncChecker struct {
	name string
	fn   func(context.Context) CheckResult
}

// NewFuncChecker wraps fn under name.
func NewFuncChecker(name string, fn func(context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
