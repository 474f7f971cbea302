package main

import (
	"os"

	"vlmd/internal/vlmctl"
)

func main() {
	os.Exit(vlmctl.Main())
}
