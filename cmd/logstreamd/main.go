package main

import (
	"os"

	"github.com/vieworks/oap-logstream/cmd"
	"github.com/vieworks/oap-logstream/utils/log"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
