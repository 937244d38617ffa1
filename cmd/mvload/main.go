package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // list dates are Europe/Berlin on hosts without zoneinfo

	"github.com/JonMunkholm/mediathek-loader/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
