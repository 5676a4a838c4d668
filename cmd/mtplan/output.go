package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"go.viam.com/motionkit/ik"
	"go.viam.com/motionkit/motionplan/mtplanning"
)

type printer struct {
	w    io.Writer
	good *color.Color
	bad  *color.Color
}

func newPrinter(c *cli.Context) *printer {
	good, bad := color.New(color.FgGreen), color.New(color.FgRed)
	if c.Bool(flagNoColor) {
		good.DisableColor()
		bad.DisableColor()
	}
	return &printer{w: c.App.Writer, good: good, bad: bad}
}

func (p *printer) linef(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) success(format string, args ...interface{}) {
	p.good.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) failure(format string, args ...interface{}) {
	p.bad.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) mark(ok bool) string {
	if ok {
		return p.good.Sprint("yes")
	}
	return p.bad.Sprint("no")
}

func (p *printer) results(results []mtplanning.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.AppendHeader(table.Row{"#", "Solved", "Cycles", "Tree", "Time", "Points", "Length", "Shortened", "Checks"})
	for _, r := range results {
		shortened := "-"
		if r.OptimizedPoints > 0 {
			shortened = fmt.Sprintf("%.2f (%d points)", r.OptimizedLength, r.OptimizedPoints)
		}
		t.AppendRow(table.Row{
			r.Index, p.mark(r.Solved), r.Cycles, r.TreeSize, r.PlanningTime,
			r.Points, fmt.Sprintf("%.2f", r.Length), shortened, r.CollisionChecks,
		})
	}
	t.Render()
}

func (p *printer) summary(s mtplanning.Summary) {
	line := fmt.Sprintf("Solved %d of %d", s.Solved, s.Problems)
	if s.Solved < s.Problems {
		p.failure("%s", line)
	} else {
		p.success("%s", line)
	}
	if s.Solved == 0 {
		return
	}
	p.linef("planning time mean %v, median %v", s.MeanPlanningTime, s.MedianPlanningTime)
	p.linef("mean cycles %.1f, mean length %.2f", s.MeanCycles, s.MeanLength)
	if s.MeanOptimized > 0 {
		p.linef("mean shortened length %.2f", s.MeanOptimized)
	}
}

func (p *printer) attempts(attempts []ik.Attempt) {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.AppendHeader(table.Row{"#", "Seed", "Success", "Error", "Evaluations", "Duration", "Constraints"})
	for i, a := range attempts {
		var failed []string
		for _, f := range a.Functions {
			if !f.Satisfied {
				failed = append(failed, f.Constraint)
			}
		}
		constraints := "ok"
		if len(failed) > 0 {
			constraints = "violated: " + strings.Join(failed, ", ")
		}
		t.AppendRow(table.Row{i, a.Seed, p.mark(a.Success), fmt.Sprintf("%.6g", a.Error), a.Evaluations, a.Duration, constraints})
	}
	t.Render()
}

func (p *printer) joints(names []string, values []float64) {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.AppendHeader(table.Row{"Joint", "Value"})
	for i, name := range names {
		t.AppendRow(table.Row{name, fmt.Sprintf("%.6f", values[i])})
	}
	t.Render()
}
