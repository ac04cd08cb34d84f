package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/afero"
)

const (
	exitPhaseFailure = 1
	exitInterrupted  = 2
	exitCritical     = 3
)

var (
	fs = afero.NewOsFs()

	faint          = color.New(color.Faint).SprintFunc()
	infoPrinter    = color.New(color.Bold)
	errorPrinter   = color.New(color.FgRed, color.Bold)
	warningPrinter = color.New(color.FgYellow, color.Bold)
	successPrinter = color.New(color.FgGreen, color.Bold)
)

type printer interface {
	Println(a ...interface{}) (n int, err error)
	Printf(format string, a ...interface{}) (n int, err error)
	Print(a ...interface{}) (n int, err error)
}
