// Package pull provides the pull command code.
package pull

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/llava/sdk/tools/models"
)

// Run executes the pull command.
func Run(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("pull: model and projector urls are required")
	}

	modelURL := args[0]
	projURL := args[1]

	for _, u := range []string{modelURL, projURL} {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("pull: invalid URL: %s", u)
		}
	}

	mdls := models.New("")

	fmt.Println("ModelURL :", modelURL)
	fmt.Println("ProjURL  :", projURL)
	fmt.Println("ModelPath:", mdls.Path())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := func(ctx context.Context, msg string, args ...any) {
		fmt.Print(msg)
		for i := 0; i+1 < len(args); i += 2 {
			fmt.Printf(" %v[%v]", args[i], args[i+1])
		}
		fmt.Println()
	}

	mp, err := mdls.Download(ctx, log, modelURL, projURL)
	if err != nil {
		return err
	}

	if !mp.Downloaded {
		fmt.Println("Already downloaded")
		return nil
	}

	fmt.Println("Download Completed")
	fmt.Println("ModelFile:", mp.ModelFile)
	fmt.Println("ProjFile :", mp.ProjFile)

	return nil
}
