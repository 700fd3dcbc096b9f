package main

import (
	"os"

	"github.com/gendoc-app/gendoc/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
