package main

import (
	"log/slog"
	"os"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow"
)

func main() {

	//you may do your own logger setup here or use this default one with slog
	stepflow.SetupLogger()

	if err := stepflow.Start(nil); err != nil {
		slog.Error("Engine exited with error", "error", err)
		os.Exit(1)
	}
}
