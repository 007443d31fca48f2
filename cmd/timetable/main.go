package main

import (
	"fmt"
	"os"
)

// @title Institute Timetable API
// @version 1.0.0
// @description Generates and serves weekly class timetables for departments and batches.
// @BasePath /
// @schemes http

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
