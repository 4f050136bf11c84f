package main

import (
	"log"
	"os"

	"github.com/mondaylite/notifier/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		log.Printf("failed to execute command. err: %v", err)
		os.Exit(1)
	}
}
