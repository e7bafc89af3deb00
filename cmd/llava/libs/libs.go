// Package libs provides the libs command code.
package libs

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/llava/sdk/llava"
	"github.com/ardanlabs/llava/sdk/tools/libs"
)

// ErrInvalidArguments is returned when the command arguments can't be used.
var ErrInvalidArguments = libs.ErrInvalidArguments

// Run executes the libs command.
func Run(processor string, allowUpgrade bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	lib, err := libs.New("", processor, allowUpgrade)
	if err != nil {
		return err
	}

	fmt.Println("LibPath  :", lib.LibsPath())
	fmt.Println("Processor:", lib.Processor())

	tag, err := lib.Download(ctx, fmtLogger)
	if err != nil {
		return fmt.Errorf("libs: unable to install llama.cpp: %w", err)
	}

	if err := llava.Init(lib.LibsPath(), llava.LogSilent); err != nil {
		return fmt.Errorf("libs: installation invalid: %w", err)
	}

	fmt.Println("Installed:", tag.Version)

	return nil
}

func fmtLogger(ctx context.Context, msg string, args ...any) {
	fmt.Print(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Printf(" %v[%v]", args[i], args[i+1])
	}
	fmt.Println()
}
