package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/amirbrooks/mdv/internal/cli"
)

func main() {
	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
