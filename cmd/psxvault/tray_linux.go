package main

import (
	"context"

	"go.uber.org/zap"
)

// runTray just opens the browser UI on startup and waits for ctx.
func runTray(ctx context.Context, browserURL string, openBrowser bool, log *zap.SugaredLogger) {
	if openBrowser {
		openWebUI(browserURL, log)
	}
	<-ctx.Done()
}
