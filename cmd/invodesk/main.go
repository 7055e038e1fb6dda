// invodesk runs the local trust core: the signed-session, trusted-time and
// license services backing the desktop invoicing frontend.
package main

import (
	"context"
	"fmt"
	"os"

	"invodesk/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invodesk: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}
