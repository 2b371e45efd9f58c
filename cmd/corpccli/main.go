package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"
)

var (
	fred  = color.New(color.FgHiRed).SprintFunc()
	fgrn  = color.New(color.FgHiGreen).SprintFunc()
	fcyan = color.New(color.FgHiCyan).SprintFunc()
)

func main() {
	app := cli.NewApp()
	app.Name = "corpccli"
	app.Usage = "command-line client for a corpc RPC service"
	app.HideHelp = false
	app.Commands = []cli.Command{callCmd, benchCmd}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, fred(err.Error()))
		os.Exit(1)
	}
}
