package main

import (
	"os"

	"github.com/zonewarden/zonewarden/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
