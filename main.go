package main

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/luma/esl/cmd"
)

func main() {
	rand.Seed(time.Now().UnixNano())

	// An Outbound listener can end up with one goroutine pair per
	// concurrently bridged call; raise GOMAXPROCS above the scheduler
	// default so a busy switch doesn't serialize them onto too few OS
	// threads.
	runtime.GOMAXPROCS(128)

	cmd.Execute()
}
